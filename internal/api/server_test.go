package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/graph/conversations"
	"github.com/handbook-assistant/server/internal/agent/graph/graphtest"
	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
	"github.com/handbook-assistant/server/internal/agent/repo"
	errx "github.com/handbook-assistant/server/internal/core/error"
)

func newGraph(t *testing.T) graph.Runner {
	t.Helper()
	runner, err := graph.BuildGraph(context.Background(), &graph.GraphConfig{
		Classifier: graphtest.KeywordClassifier(graphtest.DefaultRules, model.IntentHandbook),
		Retriever: graphtest.Corpus(&schema.Document{
			ID:       "vacation",
			Content:  "Employees are entitled to 25 vacation days per year.",
			MetaData: map[string]any{"title": "Time off"},
		}),
		Grader:          graphtest.OverlapGrader(),
		Generator:       graphtest.EchoGenerator("answer: "),
		Templater:       nodes.NewTemplater(graphtest.English(), nil),
		MessagesManager: conversations.NewMessagesManager(model.ConversationConfig{}),
		Store:           repo.NewMemoryStore(time.Hour, 0),
		Prompt:          model.PromptConfig{CompanyName: "Agile Lab"},
		Retrieve:        nodes.RetrieveConfig{K: 5, FetchK: 20},
	})
	require.NoError(t, err)
	return runner
}

// failingRunner fails every turn with err.
type failingRunner struct {
	graph.Runner
	err error
}

func (f failingRunner) Ask(context.Context, model.QueryInput) (*model.TurnResult, error) {
	return nil, f.err
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func health(t *testing.T, h http.Handler) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth_ReflectsReadiness(t *testing.T) {
	s := NewServer(Config{})
	h := s.Handler()

	assert.Equal(t, map[string]any{"status": "ok", "agent_ready": false}, health(t, h))
	s.SetRunner(newGraph(t))
	assert.Equal(t, map[string]any{"status": "ok", "agent_ready": true}, health(t, h))
}

func TestAsk_NotReady(t *testing.T) {
	rec, out := post(t, NewServer(Config{}).Handler(), `{"question":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errx.NotReadyMessage, out["error"])
}

func TestAsk_Handbook(t *testing.T) {
	s := NewServer(Config{RequestTimeout: time.Minute})
	s.SetRunner(newGraph(t))

	rec, out := post(t, s.Handler(), `{"question":"How many vacation days?","thread_id":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"answer":    "answer: How many vacation days?",
		"source":    "handbook",
		"question":  "How many vacation days?",
		"thread_id": "t1",
	}, out)
}

func TestAsk_DefaultThread(t *testing.T) {
	s := NewServer(Config{})
	s.SetRunner(newGraph(t))

	rec, out := post(t, s.Handler(), `{"question":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DefaultThreadID, out["thread_id"])
	assert.Equal(t, "conversational", out["source"])
}

func TestAsk_BadRequests(t *testing.T) {
	s := NewServer(Config{})
	s.SetRunner(newGraph(t))
	h := s.Handler()

	rec, out := post(t, h, `{"question":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errx.EmptyQuestionMessage, out["error"])

	rec, _ = post(t, h, `{"question":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(Config{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAsk_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{errx.WrapCapability("grader", errors.New("boom")), http.StatusBadGateway, errx.CapabilityErrorMessage},
		{errx.WrapCapability("generator", fmt.Errorf("call: %w", context.DeadlineExceeded)), http.StatusGatewayTimeout, errx.CapabilityTimeoutMessage},
		{errors.New("disk on fire"), http.StatusInternalServerError, errx.SystemErrorMessage},
	}
	for _, c := range cases {
		s := NewServer(Config{})
		s.SetRunner(failingRunner{err: c.err})
		rec, out := post(t, s.Handler(), `{"question":"q"}`)
		assert.Equal(t, c.status, rec.Code, c.err.Error())
		assert.Equal(t, c.msg, out["error"])
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := NewServer(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
