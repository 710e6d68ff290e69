package capabilities

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// promptChain is a compiled ChatTemplate -> ChatModel pipeline.
type promptChain struct {
	name     string
	runnable compose.Runnable[map[string]any, *schema.Message]
}

func compilePromptChain(ctx context.Context, name string, tpl prompt.ChatTemplate, cm model.BaseChatModel) (*promptChain, error) {
	if cm == nil {
		return nil, fmt.Errorf("%s: chat model is nil", name)
	}
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.
		AppendChatTemplate(tpl, compose.WithNodeName(name+"_prompt")).
		AppendChatModel(cm, compose.WithNodeName(name+"_model"))

	runnable, err := chain.Compile(ctx, compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile %s chain: %w", name, err)
	}
	return &promptChain{name: name, runnable: runnable}, nil
}

// invoke runs the chain once and returns the trimmed assistant text.
func (c *promptChain) invoke(ctx context.Context, vars map[string]any, opts ...compose.Option) (string, error) {
	out, err := c.runnable.Invoke(ctx, vars, opts...)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("%s: nil model output", c.name)
	}
	return strings.TrimSpace(out.Content), nil
}
