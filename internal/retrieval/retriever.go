package retrieval

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const (
	fieldTitle    = "title"
	fieldURL      = "url"
	fieldDistance = "vector_distance"
)

type candidate struct {
	ID       string
	Content  string
	Title    string
	URL      string
	Distance float64
	Vector   []float64
}

// candidateSource returns the n nearest passages to a query vector.
type candidateSource interface {
	nearest(ctx context.Context, vec []float64, n int) ([]candidate, error)
}

// Retriever searches the handbook index for a fetch_k candidate pool and
// re-ranks it with MMR down to k mutually dissimilar passages.
type Retriever struct {
	embedder embedding.Embedder
	source   candidateSource
	k        int
	fetchK   int
	lambda   float64
}

// NewRedisRetriever builds a Retriever over a RediSearch vector index. The
// client must speak RESP2 for FT.SEARCH replies to be parsed.
func NewRedisRetriever(rdb redis.Cmdable, embedder embedding.Embedder, cfg model.RetrievalConfig) (*Retriever, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return newRetriever(&redisSource{
		rdb:          rdb,
		index:        cfg.Index,
		vectorField:  cfg.VectorField,
		contentField: cfg.ContentField,
	}, embedder, cfg)
}

func newRetriever(src candidateSource, embedder embedding.Embedder, cfg model.RetrievalConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	r := &Retriever{
		embedder: embedder,
		source:   src,
		k:        cfg.K,
		fetchK:   cfg.FetchK,
		lambda:   cfg.Lambda,
	}
	if r.k <= 0 {
		r.k = 5
	}
	if r.fetchK < r.k {
		r.fetchK = r.k
	}
	return r, nil
}

func (r *Retriever) GetType() string {
	return "RedisMMR"
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	k := r.k
	common := retriever.GetCommonOptions(&retriever.Options{TopK: &k}, opts...)
	if common.TopK != nil && *common.TopK > 0 {
		k = *common.TopK
	}
	impl := retriever.GetImplSpecificOptions(&implOptions{FetchK: r.fetchK}, opts...)
	fetchK := impl.FetchK
	if fetchK < k {
		fetchK = k
	}
	lambda := r.lambda
	if impl.Lambda != nil {
		lambda = *impl.Lambda
	}

	vecs, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}

	cands, err := r.source.nearest(ctx, vecs[0], fetchK)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(cands))
	for i, c := range cands {
		vectors[i] = c.Vector
	}
	picked := MMR(vecs[0], vectors, k, lambda)

	docs := make([]*schema.Document, 0, len(picked))
	for _, i := range picked {
		c := cands[i]
		meta := map[string]any{
			fieldTitle:    c.Title,
			fieldDistance: c.Distance,
		}
		if c.URL != "" {
			meta[fieldURL] = c.URL
		}
		docs = append(docs, &schema.Document{ID: c.ID, Content: c.Content, MetaData: meta})
	}
	logx.Debug().
		Int("k", k).
		Int("fetch_k", fetchK).
		Int("candidates", len(cands)).
		Int("returned", len(docs)).
		Msg("handbook passages retrieved")
	return docs, nil
}

var _ retriever.Retriever = (*Retriever)(nil)

// ================ RediSearch ================

type redisSource struct {
	rdb          redis.Cmdable
	index        string
	vectorField  string
	contentField string
}

func (s *redisSource) nearest(ctx context.Context, vec []float64, n int) ([]candidate, error) {
	query := fmt.Sprintf("*=>[KNN %d @%s $vec AS %s]", n, s.vectorField, fieldDistance)
	res, err := s.rdb.FTSearchWithArgs(ctx, s.index, query, &redis.FTSearchOptions{
		Return: []redis.FTSearchReturn{
			{FieldName: s.contentField},
			{FieldName: fieldTitle},
			{FieldName: fieldURL},
			{FieldName: s.vectorField},
			{FieldName: fieldDistance},
		},
		SortBy:         []redis.FTSearchSortBy{{FieldName: fieldDistance, Asc: true}},
		Limit:          n,
		DialectVersion: 2,
		Params:         map[string]interface{}{"vec": EncodeVector(vec)},
	}).Result()
	if err != nil {
		logx.Error().Err(err).Str("index", s.index).Msg("vector search failed")
		return nil, errx.WrapRedis(err)
	}

	out := make([]candidate, 0, len(res.Docs))
	for _, d := range res.Docs {
		c := candidate{
			ID:      d.ID,
			Content: d.Fields[s.contentField],
			Title:   d.Fields[fieldTitle],
			URL:     d.Fields[fieldURL],
			Vector:  DecodeVector([]byte(d.Fields[s.vectorField])),
		}
		if dist, err := strconv.ParseFloat(d.Fields[fieldDistance], 64); err == nil {
			c.Distance = dist
		}
		out = append(out, c)
	}
	return out, nil
}

// EncodeVector packs a vector as little-endian float32, the FLOAT32 layout RediSearch expects.
func EncodeVector(vec []float64) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing bytes are ignored.
func DecodeVector(buf []byte) []float64 {
	out := make([]float64, len(buf)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return out
}
