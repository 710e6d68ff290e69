package capabilities

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/graph/parsers"
	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
)

// Classifier asks a chat model for exactly one intent label.
type Classifier struct {
	chain *promptChain
	opts  *options
}

func NewClassifier(ctx context.Context, cm einomodel.BaseChatModel, cfg model.PromptConfig, opts ...Option) (*Classifier, error) {
	chain, err := compilePromptChain(ctx, "classifier", prompts.ClassifierTemplate(cfg), cm)
	if err != nil {
		return nil, err
	}
	return &Classifier{chain: chain, opts: newOptions(opts)}, nil
}

// Classify returns the intent of the last message in window. Out-of-range
// labels are retried and then reported as a classification failure.
func (c *Classifier) Classify(ctx context.Context, window []*schema.Message) (model.Intent, error) {
	if len(window) == 0 {
		return model.IntentUnset, fmt.Errorf("%w: empty window", errx.ErrClassification)
	}
	var intent model.Intent
	err := c.opts.policy.Do(ctx, "classifier", func(ctx context.Context) error {
		content, err := c.chain.invoke(ctx, map[string]any{prompts.KeyHistory: window}, c.opts.invokeOptions()...)
		if err != nil {
			return err
		}
		parsed, err := parsers.ParseIntent(content)
		if err != nil {
			return fmt.Errorf("%w: %w", errx.ErrClassification, err)
		}
		intent = parsed
		return nil
	})
	if err != nil {
		return model.IntentUnset, err
	}
	return intent, nil
}

var _ model.Classifier = (*Classifier)(nil)
