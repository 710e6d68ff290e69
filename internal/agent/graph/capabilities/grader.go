package capabilities

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/graph/parsers"
	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
)

// Grader asks a chat model whether any passage helps answer the question.
type Grader struct {
	chain *promptChain
	opts  *options
}

func NewGrader(ctx context.Context, cm einomodel.BaseChatModel, opts ...Option) (*Grader, error) {
	chain, err := compilePromptChain(ctx, "grader", prompts.GraderTemplate(), cm)
	if err != nil {
		return nil, err
	}
	return &Grader{chain: chain, opts: newOptions(opts)}, nil
}

// Grade returns false for an empty passage set without calling the model.
func (g *Grader) Grade(ctx context.Context, question string, docs []*schema.Document) (bool, error) {
	passages := numberedPassages(docs)
	if passages == "" {
		return false, nil
	}
	vars := map[string]any{
		prompts.KeyQuestion:  question,
		prompts.KeyDocuments: passages,
	}
	var relevant bool
	err := g.opts.policy.Do(ctx, "grader", func(ctx context.Context) error {
		content, err := g.chain.invoke(ctx, vars, g.opts.invokeOptions()...)
		if err != nil {
			return err
		}
		relevant, err = parsers.ParseRelevance(content)
		return err
	})
	if err != nil {
		return false, err
	}
	return relevant, nil
}

func numberedPassages(docs []*schema.Document) string {
	var b strings.Builder
	n := 0
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Content) == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s", n, d.Content)
	}
	return b.String()
}

var _ model.Grader = (*Grader)(nil)
