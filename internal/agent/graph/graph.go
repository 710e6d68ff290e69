package graph

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/redis/go-redis/v9"

	"github.com/handbook-assistant/server/internal/agent/graph/capabilities"
	"github.com/handbook-assistant/server/internal/agent/graph/conversations"
	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/graph/observers"
	"github.com/handbook-assistant/server/internal/agent/model"
	"github.com/handbook-assistant/server/internal/retrieval"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// Runner executes conversation turns against the compiled topology.
type Runner interface {
	// Ask runs one turn and returns what the caller should see.
	Ask(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
	// Trace runs one turn and returns every node step with the result.
	Trace(ctx context.Context, in model.QueryInput) (*Trace, error)
	// RunNode executes a single node against the given state without persisting anything.
	RunNode(ctx context.Context, node string, state *model.ConversationState) (model.Update, error)
	// Shape describes the topology for structural checks.
	Shape() Shape
}

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the Gemini
// capabilities and the handbook retriever.
type Config struct {
	APIKey  string
	BaseURL string

	ClassifierModel model.ClassifierModelConfig
	GraderModel     model.GraderModelConfig
	ResponseModel   model.ResponseModelConfig
	TranslatorModel model.TranslatorModelConfig
	Retrieval       model.RetrievalConfig
	Capability      model.CapabilityConfig
	Prompt          model.PromptConfig
	Conversation    model.ConversationConfig

	// ChatModels is built from the model configs when nil.
	ChatModels        *nodes.ChatModels
	ConversationStore model.ConversationStore
	// Index is the Redis client holding the handbook vector index.
	Index redis.Cmdable
	// Usage, when set, accumulates token usage and cost of every model call.
	Usage *observers.UsageMeter
}

// GraphConfig holds the capabilities the graph is built from.
type GraphConfig struct {
	Classifier      model.Classifier
	Retriever       retriever.Retriever
	Grader          model.Grader
	Generator       model.Generator
	Templater       *nodes.Templater
	MessagesManager *conversations.MessagesManager
	Store           model.ConversationStore
	Prompt          model.PromptConfig
	Retrieve        nodes.RetrieveConfig
}

// maxTurnDepth is classify, retrieve, grade and one reply node.
const maxTurnDepth = 4

type graphRunner struct {
	exec     *Executor
	topology *Topology
}

func (r *graphRunner) Ask(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	trace, err := r.exec.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return trace.Result, nil
}

func (r *graphRunner) Trace(ctx context.Context, in model.QueryInput) (*Trace, error) {
	return r.exec.Run(ctx, in)
}

func (r *graphRunner) RunNode(ctx context.Context, node string, state *model.ConversationState) (model.Update, error) {
	return r.exec.RunNode(ctx, node, state)
}

func (r *graphRunner) Shape() Shape {
	return r.topology.Shape()
}

// BuildResponseGraph builds the Gemini capabilities, the Redis retriever and the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationStore == nil {
		return nil, fmt.Errorf("conversation store is nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("handbook index client is nil")
	}

	cms := cfg.ChatModels
	if cms == nil {
		var err error
		cms, err = nodes.NewChatModels(ctx, nodes.ChatModelConfig{
			APIKey:           cfg.APIKey,
			BaseURL:          cfg.BaseURL,
			ClassifierConfig: &cfg.ClassifierModel,
			GraderConfig:     &cfg.GraderModel,
			RespConfig:       &cfg.ResponseModel,
			TranslatorConfig: &cfg.TranslatorModel,
		})
		if err != nil {
			return nil, err
		}
	}

	handlers := []einocb.Handler{observers.NewAllCallbacks(observers.WithUsageMeter(cfg.Usage))}
	policy := capabilities.PolicyFromConfig(cfg.Capability)
	opts := []capabilities.Option{
		capabilities.WithPolicy(policy),
		capabilities.WithCallbacks(handlers...),
	}

	classifier, err := capabilities.NewClassifier(ctx, cms.Classifier, cfg.Prompt, opts...)
	if err != nil {
		return nil, err
	}
	grader, err := capabilities.NewGrader(ctx, cms.Grader, opts...)
	if err != nil {
		return nil, err
	}
	generator, err := capabilities.NewGenerator(ctx, cms.Response, opts...)
	if err != nil {
		return nil, err
	}
	translator, err := capabilities.NewTranslator(ctx, cms.Translator, opts...)
	if err != nil {
		return nil, err
	}

	embedder, err := retrieval.NewGeminiEmbedder(cms.Client, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	handbook, err := retrieval.NewRedisRetriever(cfg.Index, embedder, cfg.Retrieval)
	if err != nil {
		return nil, err
	}

	runner, err := BuildGraph(ctx, &GraphConfig{
		Classifier:      classifier,
		Retriever:       handbook,
		Grader:          grader,
		Generator:       generator,
		Templater:       nodes.NewTemplater(capabilities.NewDetector(), translator),
		MessagesManager: conversations.NewMessagesManager(cfg.Conversation),
		Store:           cfg.ConversationStore,
		Prompt:          cfg.Prompt,
		Retrieve: nodes.RetrieveConfig{
			K:         cfg.Retrieval.K,
			FetchK:    cfg.Retrieval.FetchK,
			Policy:    policy,
			Callbacks: handlers,
		},
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Response graph built successfully")
	return runner, nil
}

// BuildGraph validates the capabilities, assembles the transition table and returns a Runner.
func BuildGraph(ctx context.Context, config *GraphConfig) (Runner, error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Classifier == nil || config.Retriever == nil || config.Grader == nil || config.Generator == nil {
		return nil, fmt.Errorf("capabilities are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Templater == nil {
		return nil, fmt.Errorf("reply templater is nil")
	}

	retrieve, err := nodes.NewRetrieveNode(ctx, config.Retriever, config.Retrieve)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating retrieve node")
		return nil, err
	}

	topology := &Topology{
		Entry:    nodes.NodeClassify,
		MaxDepth: maxTurnDepth,
		Handlers: map[string]Handler{
			nodes.NodeClassify:       nodes.NewClassifyNode(config.Classifier, config.MessagesManager),
			nodes.NodeRetrieve:       retrieve,
			nodes.NodeGrade:          nodes.NewGradeNode(config.Grader, config.MessagesManager),
			nodes.NodeGenerate:       nodes.NewGenerateNode(config.Generator, config.MessagesManager, config.Prompt),
			nodes.NodeConversational: nodes.NewConversationalNode(config.Generator, config.MessagesManager, config.Prompt),
			nodes.NodeOffTopic:       nodes.NewOffTopicNode(config.Templater, config.Prompt),
			nodes.NodeNotFound:       nodes.NewNotFoundNode(config.Templater, config.Prompt),
		},
		Edges: map[string]string{
			nodes.NodeRetrieve:       nodes.NodeGrade,
			nodes.NodeGenerate:       nodes.NodeEnd,
			nodes.NodeConversational: nodes.NodeEnd,
			nodes.NodeOffTopic:       nodes.NodeEnd,
			nodes.NodeNotFound:       nodes.NodeEnd,
		},
		Branches: map[string]Branch{
			nodes.NodeClassify: {
				Targets: []string{nodes.NodeConversational, nodes.NodeRetrieve, nodes.NodeOffTopic},
				Decide:  nodes.NewIntentCondition(),
			},
			nodes.NodeGrade: {
				Targets: []string{nodes.NodeGenerate, nodes.NodeNotFound},
				Decide:  nodes.NewRelevanceCondition(),
			},
		},
	}

	exec, err := NewExecutor(topology, config.Store)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("nodes", len(topology.Handlers)).Msg("Graph compiled successfully")
	return &graphRunner{exec: exec, topology: topology}, nil
}
