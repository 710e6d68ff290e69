package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const (
	fieldIntent    = "intent"
	fieldRelevant  = "relevant"
	fieldAnswer    = "answer"
	fieldSource    = "source"
	fieldDocuments = "documents"
)

// RedisConversationStore persists messages in a Redis list and the
// turn-scoped fields in a hash. A merge runs as one MULTI/EXEC transaction.
type RedisConversationStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisConversationStore(rdb redis.Cmdable, ttl time.Duration) *RedisConversationStore {
	return &RedisConversationStore{rdb: rdb, ttl: ttl}
}

func (r *RedisConversationStore) messagesKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:messages", threadID)
}

func (r *RedisConversationStore) stateKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:state", threadID)
}

func (r *RedisConversationStore) Get(ctx context.Context, threadID string) (*model.ConversationState, error) {
	var (
		rows   *redis.StringSliceCmd
		fields *redis.MapStringStringCmd
	)
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rows = pipe.LRange(ctx, r.messagesKey(threadID), 0, -1)
		fields = pipe.HGetAll(ctx, r.stateKey(threadID))
		return nil
	})
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load conversation from redis")
		return nil, errx.WrapRedis(err)
	}
	return decodeState(threadID, rows.Val(), fields.Val())
}

func (r *RedisConversationStore) Merge(ctx context.Context, threadID string, update model.Update) (*model.ConversationState, error) {
	msgKey, stKey := r.messagesKey(threadID), r.stateKey(threadID)

	encodedMsgs := make([]any, 0, len(update.Messages))
	for _, m := range update.Messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to marshal message")
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		encodedMsgs = append(encodedMsgs, b)
	}
	set, del, err := encodeFields(update)
	if err != nil {
		return nil, err
	}

	var (
		rows   *redis.StringSliceCmd
		fields *redis.MapStringStringCmd
	)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(encodedMsgs) > 0 {
			pipe.RPush(ctx, msgKey, encodedMsgs...)
		}
		if len(set) > 0 {
			pipe.HSet(ctx, stKey, set)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, stKey, del...)
		}
		// extend TTL on touch
		if r.ttl > 0 {
			pipe.Expire(ctx, msgKey, r.ttl)
			pipe.Expire(ctx, stKey, r.ttl)
		}
		rows = pipe.LRange(ctx, msgKey, 0, -1)
		fields = pipe.HGetAll(ctx, stKey)
		return nil
	})
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to merge conversation in redis")
		return nil, errx.WrapRedis(err)
	}
	return decodeState(threadID, rows.Val(), fields.Val())
}

func (r *RedisConversationStore) Delete(ctx context.Context, threadID string) error {
	if err := r.rdb.Del(ctx, r.messagesKey(threadID), r.stateKey(threadID)).Err(); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete conversation from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// MessageCount returns the number of messages stored for the thread.
func (r *RedisConversationStore) MessageCount(ctx context.Context, threadID string) (int, error) {
	n, err := r.rdb.LLen(ctx, r.messagesKey(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

// encodeFields splits an update's scalar fields into hash sets and deletes.
func encodeFields(u model.Update) (map[string]any, []string, error) {
	set := map[string]any{}
	var del []string

	if docs, ok := u.Documents.Get(); ok {
		if docs == nil {
			del = append(del, fieldDocuments)
		} else {
			b, err := json.Marshal(docs)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal documents: %w", err)
			}
			set[fieldDocuments] = string(b)
		}
	}
	if v, ok := u.Intent.Get(); ok {
		set[fieldIntent] = v.String()
	}
	if v, ok := u.Relevant.Get(); ok {
		set[fieldRelevant] = strconv.FormatBool(v)
	} else if u.ClearRelevant.OrElse(false) {
		del = append(del, fieldRelevant)
	}
	if v, ok := u.Answer.Get(); ok {
		set[fieldAnswer] = v
	}
	if v, ok := u.Source.Get(); ok {
		set[fieldSource] = v.String()
	}
	return set, del, nil
}

func decodeState(threadID string, rows []string, fields map[string]string) (*model.ConversationState, error) {
	st := model.NewConversationState(threadID)

	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		st.Messages = append(st.Messages, &m)
	}

	if raw := fields[fieldDocuments]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &st.Documents); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
	}
	if raw := fields[fieldIntent]; raw != "" {
		intent, err := model.ParseIntent(raw)
		if err != nil {
			return nil, err
		}
		st.Intent = intent
	}
	if raw, ok := fields[fieldRelevant]; ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse relevant: %w", err)
		}
		st.Relevant = model.Some(v)
	}
	st.Answer = fields[fieldAnswer]
	source, err := model.ParseSource(fields[fieldSource])
	if err != nil {
		return nil, err
	}
	st.Source = source
	return st, nil
}

var _ model.ConversationStore = (*RedisConversationStore)(nil)
