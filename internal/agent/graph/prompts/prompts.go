package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/model"
)

// Placeholder keys shared between templates and the chains that format them.
const (
	KeyHistory   = "history"
	KeySystem    = "system"
	KeyQuestion  = "question"
	KeyDocuments = "documents"
	KeyLanguage  = "language"
	KeyText      = "text"
	KeyExpected  = "expected"
	KeyAnswer    = "answer"
)

var (
	//go:embed template/classify_prompt.txt
	classifySystemPrompt string
	//go:embed template/grade_system_prompt.txt
	gradeSystemPrompt string
	//go:embed template/grade_user_prompt.txt
	gradeUserPrompt string
	//go:embed template/generate_prompt.txt
	generateSystemPrompt string
	//go:embed template/conversational_prompt.txt
	conversationalSystemPrompt string
	//go:embed template/translate_prompt.txt
	translateSystemPrompt string
	//go:embed template/judge_user_prompt.txt
	judgeUserPrompt string
)

// withCompany substitutes the company token in templates whose JSON examples
// must not go through variable formatting twice.
func withCompany(tpl string, cfg model.PromptConfig) string {
	return strings.NewReplacer("{company}", cfg.CompanyName).Replace(tpl)
}

// ClassifierTemplate formats the classifier system prompt followed by the history window.
func ClassifierTemplate(cfg model.PromptConfig) prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(withCompany(classifySystemPrompt, cfg)),
		schema.MessagesPlaceholder(KeyHistory, false),
	)
}

// GraderTemplate formats the grading rules and a question with numbered passages.
func GraderTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(gradeSystemPrompt),
		schema.UserMessage(gradeUserPrompt),
	)
}

// GeneratorTemplate takes a rendered system prompt and the history to answer from.
func GeneratorTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage("{{.system}}"),
		schema.MessagesPlaceholder(KeyHistory, false),
	)
}

// TranslatorTemplate asks for a translation of {{.text}} into {{.language}}.
func TranslatorTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(translateSystemPrompt),
		schema.UserMessage("{{.text}}"),
	)
}

// RenderGenerateSystem renders the grounded-answer system prompt and triggers prompt callbacks.
func RenderGenerateSystem(ctx context.Context, cfg model.PromptConfig, contextBlock string) (string, error) {
	return renderSystem(ctx, generateSystemPrompt, map[string]any{
		"company": cfg.CompanyName,
		"context": contextBlock,
	})
}

// RenderConversationalSystem renders the small-talk system prompt.
func RenderConversationalSystem(ctx context.Context, cfg model.PromptConfig) (string, error) {
	return renderSystem(ctx, conversationalSystemPrompt, map[string]any{
		"company": cfg.CompanyName,
	})
}

func renderSystem(ctx context.Context, tplText string, vars map[string]any) (string, error) {
	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
