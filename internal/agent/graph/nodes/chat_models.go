package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/handbook-assistant/server/internal/agent/model"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey           string
	BaseURL          string
	ClassifierConfig *model.ClassifierModelConfig
	GraderConfig     *model.GraderModelConfig
	RespConfig       *model.ResponseModelConfig
	TranslatorConfig *model.TranslatorModelConfig
	JudgeConfig      *model.JudgeModelConfig
}

// ChatModels holds one Gemini chat model per capability plus the shared client.
type ChatModels struct {
	Client     *genai.Client
	Classifier *gemini.ChatModel
	Grader     *gemini.ChatModel
	Response   *gemini.ChatModel
	Translator *gemini.ChatModel
	Judge      *gemini.ChatModel
}

// NewChatModels creates all chat models over a single Gemini client
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.ClassifierConfig == nil || config.GraderConfig == nil || config.RespConfig == nil || config.TranslatorConfig == nil {
		return nil, fmt.Errorf("chat model configs are not properly initialized")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cms := &ChatModels{Client: client}

	if cms.Classifier, err = newGeminiModel(ctx, client, "classifier", config.ClassifierConfig.Model,
		config.ClassifierConfig.Temperature, config.ClassifierConfig.MaxTokens, 0); err != nil {
		return nil, err
	}
	if cms.Grader, err = newGeminiModel(ctx, client, "grader", config.GraderConfig.Model,
		config.GraderConfig.Temperature, config.GraderConfig.MaxTokens, 0); err != nil {
		return nil, err
	}
	if cms.Response, err = newGeminiModel(ctx, client, "response", config.RespConfig.Model,
		config.RespConfig.Temperature, config.RespConfig.MaxTokens, config.RespConfig.ThinkingBudget); err != nil {
		return nil, err
	}
	if cms.Translator, err = newGeminiModel(ctx, client, "translator", config.TranslatorConfig.Model,
		config.TranslatorConfig.Temperature, config.TranslatorConfig.MaxTokens, 0); err != nil {
		return nil, err
	}
	if config.JudgeConfig != nil {
		if cms.Judge, err = newGeminiModel(ctx, client, "judge", config.JudgeConfig.Model,
			config.JudgeConfig.Temperature, config.JudgeConfig.MaxTokens, 0); err != nil {
			return nil, err
		}
	}

	return cms, nil
}

func newGeminiModel(ctx context.Context, client *genai.Client, role, name string, temperature float32, maxTokens int, thinkingBudget int32) (*gemini.ChatModel, error) {
	cfg := &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
	if thinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(thinkingBudget),
		}
	}
	cm, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Str("role", role).Str("model", name).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating %s model: %w", role, err)
	}
	return cm, nil
}
