package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Node names. START and END are implicit and never have handlers.
const (
	NodeStart          = "START"
	NodeEnd            = "END"
	NodeClassify       = "classify"
	NodeRetrieve       = "retrieve"
	NodeGrade          = "grade"
	NodeGenerate       = "generate"
	NodeConversational = "conversational"
	NodeOffTopic       = "off_topic"
	NodeNotFound       = "not_found"
)

// ===== Small helpers to keep handlers simple/readable =====

// assistantTurn builds the message appended for the turn's answer.
func assistantTurn(answer string) []*schema.Message {
	return []*schema.Message{schema.AssistantMessage(answer, nil)}
}

// preview shortens text for log lines.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
