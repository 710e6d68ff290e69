package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/model"
)

type fixedEmbedder struct {
	vec []float64
	err error
}

func (e *fixedEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

type fakeSource struct {
	cands []candidate
	gotN  int
}

func (s *fakeSource) nearest(_ context.Context, _ []float64, n int) ([]candidate, error) {
	s.gotN = n
	if n < len(s.cands) {
		return s.cands[:n], nil
	}
	return s.cands, nil
}

func handbookCandidates() []candidate {
	return []candidate{
		{ID: "a", Content: "Employees get 25 vacation days.", Title: "Holidays", Vector: []float64{1, 0, 0}},
		{ID: "b", Content: "Vacation: 25 days per year.", Title: "Holidays", Vector: []float64{0.99, 0.01, 0}},
		{ID: "c", Content: "Unused vacation days roll over.", Title: "Carry over", Vector: []float64{0.7, 0.7, 0}},
		{ID: "d", Content: "The office is in Milan.", Title: "Offices", Vector: []float64{0, 0, 1}},
	}
}

func TestRetrieve_UsesFetchKPoolAndTopK(t *testing.T) {
	src := &fakeSource{cands: handbookCandidates()}
	r, err := newRetriever(src, &fixedEmbedder{vec: []float64{1, 0.3, 0}}, model.RetrievalConfig{K: 5, FetchK: 20, Lambda: 0.5})
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "vacation days", retriever.WithTopK(2), WithFetchK(4))
	require.NoError(t, err)
	assert.Equal(t, 4, src.gotN)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID, "near-duplicate a is pushed down by diversity")
	assert.Equal(t, "Holidays", docs[0].MetaData["title"])
}

func TestRetrieve_DefaultsFromConfig(t *testing.T) {
	src := &fakeSource{cands: handbookCandidates()}
	r, err := newRetriever(src, &fixedEmbedder{vec: []float64{1, 0, 0}}, model.RetrievalConfig{K: 3, FetchK: 2, Lambda: 1})
	require.NoError(t, err)

	docs, err := r.Retrieve(context.Background(), "vacation")
	require.NoError(t, err)
	assert.Equal(t, 3, src.gotN, "fetch_k never drops below k")
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestRetrieve_EmbedderError(t *testing.T) {
	r, err := newRetriever(&fakeSource{}, &fixedEmbedder{err: errors.New("quota")}, model.RetrievalConfig{})
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), "q")
	assert.ErrorContains(t, err, "quota")
}

func TestVectorEncoding(t *testing.T) {
	vec := []float64{0.5, -1.25, 3}
	assert.Equal(t, vec, DecodeVector(EncodeVector(vec)))
	assert.Len(t, EncodeVector(vec), 12)
}
