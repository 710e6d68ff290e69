package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/model"
)

const untitledSource = "n/a"

// MessagesManager decides how much history each capability sees.
type MessagesManager struct {
	classifierMaxTurns  int
	smallTalkMaxTurns   int
	followUpMaxTokens   int
	followUpMinMessages int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		classifierMaxTurns:  positiveOr(config.Classifier.MaxTurns, 5),
		smallTalkMaxTurns:   positiveOr(config.SmallTalk.MaxTurns, 3),
		followUpMaxTokens:   positiveOr(config.FollowUp.MaxTokens, 4),
		followUpMinMessages: positiveOr(config.FollowUp.MinMessages, 2),
	}
}

// =========== Windows ===========

// ClassifierWindow returns the recent messages the classifier needs to resolve
// references to earlier statements.
func (cm *MessagesManager) ClassifierWindow(messages []*schema.Message) []*schema.Message {
	return trimTail(messages, cm.classifierMaxTurns)
}

// SmallTalkWindow returns the few messages the conversational reply is built from.
func (cm *MessagesManager) SmallTalkWindow(messages []*schema.Message) []*schema.Message {
	return trimTail(messages, cm.smallTalkMaxTurns)
}

// GeneratorHistory returns the full history with empty entries dropped.
func (cm *MessagesManager) GeneratorHistory(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// IsShortFollowUp reports whether a terse question continues an earlier
// exchange. messageCount includes the current user message.
func (cm *MessagesManager) IsShortFollowUp(question string, messageCount int) bool {
	return len(strings.Fields(question)) < cm.followUpMaxTokens && messageCount > cm.followUpMinMessages
}

// =========== Context ===========

// BuildContext renders passages as "[Source: <title>]\n<content>" blocks separated by a blank line.
func BuildContext(docs []*schema.Document) string {
	var b strings.Builder
	for _, d := range docs {
		if d == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[Source: ")
		b.WriteString(SourceTitle(d))
		b.WriteString("]\n")
		b.WriteString(d.Content)
	}
	return b.String()
}

// SourceTitle returns the passage title from its metadata, or "n/a".
func SourceTitle(d *schema.Document) string {
	if d == nil || d.MetaData == nil {
		return untitledSource
	}
	if t, ok := d.MetaData["title"].(string); ok && strings.TrimSpace(t) != "" {
		return t
	}
	return untitledSource
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
