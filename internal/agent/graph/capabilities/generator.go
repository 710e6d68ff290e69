package capabilities

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
)

// Generator produces free-form replies from a system prompt and a history.
type Generator struct {
	chain *promptChain
	opts  *options
}

func NewGenerator(ctx context.Context, cm einomodel.BaseChatModel, opts ...Option) (*Generator, error) {
	chain, err := compilePromptChain(ctx, "generator", prompts.GeneratorTemplate(), cm)
	if err != nil {
		return nil, err
	}
	return &Generator{chain: chain, opts: newOptions(opts)}, nil
}

func (g *Generator) Generate(ctx context.Context, system string, history []*schema.Message) (string, error) {
	vars := map[string]any{
		prompts.KeySystem:  system,
		prompts.KeyHistory: history,
	}
	var answer string
	err := g.opts.policy.Do(ctx, "generator", func(ctx context.Context) error {
		content, err := g.chain.invoke(ctx, vars, g.opts.invokeOptions()...)
		if err != nil {
			return err
		}
		if content == "" {
			return fmt.Errorf("generator returned empty content")
		}
		answer = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

var _ model.Generator = (*Generator)(nil)
