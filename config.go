package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"

	"github.com/handbook-assistant/server/internal/agent/graph"
	"github.com/handbook-assistant/server/internal/agent/graph/capabilities"
	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/graph/observers"
	"github.com/handbook-assistant/server/internal/agent/model"
	"github.com/handbook-assistant/server/internal/agent/repo"
	"github.com/handbook-assistant/server/internal/api"
	"github.com/handbook-assistant/server/internal/core"
	"github.com/handbook-assistant/server/internal/evaluation"
	logx "github.com/handbook-assistant/server/pkg/logger"
	pkgredis "github.com/handbook-assistant/server/pkg/redis"
)

// AppConfig holds every setting of the service, read from the environment
// (and a .env file for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  api.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Grader       model.GraderModelConfig
	Response     model.ResponseModelConfig
	Translator   model.TranslatorModelConfig
	Judge        model.JudgeModelConfig
	Retrieval    model.RetrievalConfig
	Capability   model.CapabilityConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig

	// Serving
	AgentBuild AgentBuildConfig

	// Evaluation
	Lash evaluation.LashConfig
}

func loadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg AppConfig) {
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
}

// agent bundles a built runner with the resources it holds.
type agent struct {
	Runner graph.Runner
	Store  model.ConversationStore
	Models *nodes.ChatModels
	Usage  *observers.UsageMeter
	rdb    *goredis.Client
}

func (a *agent) Close() error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}

// newConversationStore picks the store named by CONVERSATION_STORE.
func newConversationStore(cfg model.ConversationConfig, rdb goredis.Cmdable) (model.ConversationStore, error) {
	switch cfg.Store {
	case "", "memory":
		return repo.NewMemoryStore(cfg.TTL, cfg.MaxThreads), nil
	case "redis":
		return repo.NewRedisConversationStore(rdb, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q (want memory or redis)", cfg.Store)
	}
}

// buildAgent connects to Redis and Gemini and builds the response graph.
// withJudge also creates the judge model used by the LASH evaluation.
func buildAgent(ctx context.Context, cfg AppConfig, withJudge bool) (*agent, error) {
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a := &agent{rdb: rdb, Usage: observers.NewUsageMeter()}

	if a.Store, err = newConversationStore(cfg.Conversation, rdb); err != nil {
		_ = a.Close()
		return nil, err
	}

	cmCfg := nodes.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ClassifierConfig: &cfg.Classifier,
		GraderConfig:     &cfg.Grader,
		RespConfig:       &cfg.Response,
		TranslatorConfig: &cfg.Translator,
	}
	if withJudge {
		cmCfg.JudgeConfig = &cfg.Judge
	}
	if a.Models, err = nodes.NewChatModels(ctx, cmCfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Runner, err = graph.BuildResponseGraph(ctx, graph.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		ClassifierModel:   cfg.Classifier,
		GraderModel:       cfg.Grader,
		ResponseModel:     cfg.Response,
		TranslatorModel:   cfg.Translator,
		Retrieval:         cfg.Retrieval,
		Capability:        cfg.Capability,
		Prompt:            cfg.Prompt,
		Conversation:      cfg.Conversation,
		ChatModels:        a.Models,
		ConversationStore: a.Store,
		Index:             rdb,
		Usage:             a.Usage,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build graph: %w", err)
	}
	logx.Info().
		Str("store", cfg.Conversation.Store).
		Str("index", cfg.Retrieval.Index).
		Msg("agent ready")
	return a, nil
}

func newJudge(ctx context.Context, cfg AppConfig, a *agent) (*capabilities.Judge, error) {
	if a.Models == nil || a.Models.Judge == nil {
		return nil, errors.New("judge model not initialised")
	}
	return capabilities.NewJudge(ctx, a.Models.Judge, cfg.Prompt,
		capabilities.WithPolicy(capabilities.PolicyFromConfig(cfg.Capability)),
		capabilities.WithCallbacks(observers.NewAllCallbacks(observers.WithUsageMeter(a.Usage))),
	)
}
