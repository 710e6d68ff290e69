package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/model"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisConversationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisConversationStore(rdb, ttl), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, _ := newRedisStore(t, 0)

	docs := []*schema.Document{{ID: "d1", Content: "Employees get 25 vacation days.", MetaData: map[string]any{"title": "Holidays"}}}
	turn := model.BeginTurn("How many vacation days do employees get?").
		Then(model.Update{Intent: model.Some(model.IntentHandbook)}).
		Then(model.Update{Documents: model.Some(docs)}).
		Then(model.Update{Relevant: model.Some(true)}).
		Then(model.Update{
			Messages: []*schema.Message{schema.AssistantMessage("25 days.", nil)},
			Answer:   model.Some("25 days."),
			Source:   model.Some(model.SourceHandbook),
		})

	merged, err := st.Merge(ctx, "t1", turn)
	require.NoError(t, err)

	got, err := st.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, merged, got)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, schema.User, got.Messages[0].Role)
	assert.Equal(t, schema.Assistant, got.Messages[1].Role)
	assert.Equal(t, model.IntentHandbook, got.Intent)
	assert.True(t, got.Relevant.OrElse(false))
	assert.Equal(t, model.SourceHandbook, got.Source)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "Holidays", got.Documents[0].MetaData["title"])

	n, err := st.MessageCount(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisStore_NextTurnClearsTurnScopedFields(t *testing.T) {
	ctx := context.Background()
	st, _ := newRedisStore(t, 0)

	_, err := st.Merge(ctx, "t1", model.BeginTurn("vacation?").Then(model.Update{
		Documents: model.Some([]*schema.Document{{Content: "x"}}),
		Relevant:  model.Some(false),
		Intent:    model.Some(model.IntentHandbook),
	}))
	require.NoError(t, err)

	got, err := st.Merge(ctx, "t1", model.BeginTurn("hi").Then(model.Update{Intent: model.Some(model.IntentConversational)}))
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Nil(t, got.Documents)
	assert.False(t, got.Relevant.IsSet())
	assert.Equal(t, model.IntentConversational, got.Intent)
}

func TestRedisStore_TTLAndDelete(t *testing.T) {
	ctx := context.Background()
	st, mr := newRedisStore(t, time.Minute)

	_, err := st.Merge(ctx, "t1", userTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("conversation:t1:messages"))

	mr.FastForward(2 * time.Minute)
	got, err := st.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	_, err = st.Merge(ctx, "t2", userTurn("hello"))
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, "t2"))
	assert.False(t, mr.Exists("conversation:t2:messages"))
}

func TestRedisStore_UnavailableIsWrapped(t *testing.T) {
	st, mr := newRedisStore(t, 0)
	mr.Close()
	_, err := st.Get(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis operation failed")
}
