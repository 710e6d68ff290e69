package prompts

import (
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/model"
)

var (
	//go:embed template/judge_correctness_prompt.txt
	judgeCorrectnessPrompt string
	//go:embed template/judge_safety_prompt.txt
	judgeSafetyPrompt string
	//go:embed template/judge_helpfulness_prompt.txt
	judgeHelpfulnessPrompt string
)

// Judge dimensions scored by an LLM.
const (
	JudgeCorrectness = "correctness"
	JudgeSafety      = "safety"
	JudgeHelpfulness = "helpfulness"
)

// JudgeTemplate returns the yes/no judging prompt for one dimension.
func JudgeTemplate(dimension string, cfg model.PromptConfig) (prompt.ChatTemplate, error) {
	var system string
	switch dimension {
	case JudgeCorrectness:
		system = judgeCorrectnessPrompt
	case JudgeSafety:
		system = judgeSafetyPrompt
	case JudgeHelpfulness:
		system = judgeHelpfulnessPrompt
	default:
		return nil, fmt.Errorf("unknown judge dimension %q", dimension)
	}
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(withCompany(system, cfg)),
		schema.UserMessage(judgeUserPrompt),
	), nil
}
