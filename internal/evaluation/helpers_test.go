package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/graph/conversations"
	"github.com/handbook-assistant/server/internal/agent/graph/graphtest"
	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
	"github.com/handbook-assistant/server/internal/agent/repo"
)

func corpus() []*schema.Document {
	return []*schema.Document{
		{ID: "vacation", Content: "Employees are entitled to 25 vacation days per calendar year.", MetaData: map[string]any{"title": "Time off"}},
		{ID: "remote", Content: "Team members can work remotely up to three days a week.", MetaData: map[string]any{"title": "Remote work"}},
	}
}

func newRunner(t *testing.T) (graph.Runner, *repo.MemoryStore) {
	t.Helper()
	store := repo.NewMemoryStore(time.Hour, 0)
	runner, err := graph.BuildGraph(context.Background(), &graph.GraphConfig{
		Classifier:      graphtest.KeywordClassifier(graphtest.DefaultRules, model.IntentHandbook),
		Retriever:       graphtest.Corpus(corpus()...),
		Grader:          graphtest.OverlapGrader(),
		Generator:       graphtest.EchoGenerator("answer: "),
		Templater:       nodes.NewTemplater(graphtest.English(), nil),
		MessagesManager: conversations.NewMessagesManager(model.ConversationConfig{}),
		Store:           store,
		Prompt:          model.PromptConfig{CompanyName: "Agile Lab"},
		Retrieve:        nodes.RetrieveConfig{K: 5, FetchK: 20},
	})
	require.NoError(t, err)
	return runner, store
}
