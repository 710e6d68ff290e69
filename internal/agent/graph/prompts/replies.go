package prompts

import (
	"fmt"

	"github.com/handbook-assistant/server/internal/agent/model"
)

// OffTopicReply is the English deflection for questions outside the handbook.
func OffTopicReply(cfg model.PromptConfig) string {
	return fmt.Sprintf("I can only answer questions about the %[1]s company handbook. "+
		"Please ask me about %[1]s's policies, culture, benefits, or engineering practices.", cfg.CompanyName)
}

// NotFoundReply is the English deflection for handbook questions the corpus does not cover.
func NotFoundReply(cfg model.PromptConfig) string {
	return fmt.Sprintf("I couldn't find relevant information about this in the %s handbook. "+
		"You might want to ask your manager or check internally.", cfg.CompanyName)
}
