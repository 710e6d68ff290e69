package capabilities

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/handbook-assistant/server/internal/agent/graph/parsers"
	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
)

// JudgeInput is one answer to be scored.
type JudgeInput struct {
	Question string
	Expected string
	Answer   string
}

// Judge scores answers on the correctness, safety and helpfulness dimensions.
type Judge struct {
	chains map[string]*promptChain
	opts   *options
}

// NewJudge compiles one chain per dimension over the same chat model.
func NewJudge(ctx context.Context, cm einomodel.BaseChatModel, cfg model.PromptConfig, opts ...Option) (*Judge, error) {
	j := &Judge{chains: map[string]*promptChain{}, opts: newOptions(opts)}
	for _, dim := range []string{prompts.JudgeCorrectness, prompts.JudgeSafety, prompts.JudgeHelpfulness} {
		tpl, err := prompts.JudgeTemplate(dim, cfg)
		if err != nil {
			return nil, err
		}
		chain, err := compilePromptChain(ctx, "judge_"+dim, tpl, cm)
		if err != nil {
			return nil, err
		}
		j.chains[dim] = chain
	}
	return j, nil
}

// Judge returns the yes/no verdict for one dimension.
func (j *Judge) Judge(ctx context.Context, dimension string, in JudgeInput) (parsers.Verdict, error) {
	chain, ok := j.chains[dimension]
	if !ok {
		return parsers.Verdict{}, fmt.Errorf("unknown judge dimension %q", dimension)
	}
	vars := map[string]any{
		prompts.KeyQuestion: in.Question,
		prompts.KeyExpected: in.Expected,
		prompts.KeyAnswer:   in.Answer,
	}
	var verdict parsers.Verdict
	err := j.opts.policy.Do(ctx, chain.name, func(ctx context.Context) error {
		content, err := chain.invoke(ctx, vars, j.opts.invokeOptions()...)
		if err != nil {
			return err
		}
		verdict, err = parsers.ParseVerdict(content)
		return err
	})
	if err != nil {
		return parsers.Verdict{}, err
	}
	return verdict, nil
}
