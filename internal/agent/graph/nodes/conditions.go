package nodes

import (
	"context"
	"fmt"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// NewIntentCondition routes after classify. Every intent has exactly one target.
func NewIntentCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		var next string
		switch s.Intent {
		case model.IntentConversational:
			next = NodeConversational
		case model.IntentOffTopic:
			next = NodeOffTopic
		case model.IntentHandbook:
			next = NodeRetrieve
		case model.IntentUnset:
			return "", fmt.Errorf("%w: intent not set after classify", errx.ErrClassification)
		default:
			return "", fmt.Errorf("%w: %v", model.ErrInvalidIntent, s.Intent)
		}
		logx.Debug().Str("thread_id", s.ThreadID).Str("intent", s.Intent.String()).Str("next", next).Msg("Routing on intent")
		return next, nil
	}
}

// NewRelevanceCondition routes after grade.
func NewRelevanceCondition() func(context.Context, *model.ConversationState) (string, error) {
	return func(ctx context.Context, s *model.ConversationState) (string, error) {
		relevant, ok := s.Relevant.Get()
		if !ok {
			return "", fmt.Errorf("relevance not set after grade")
		}
		next := NodeNotFound
		if relevant {
			next = NodeGenerate
		}
		logx.Debug().Str("thread_id", s.ThreadID).Bool("relevant", relevant).Str("next", next).Msg("Routing on relevance")
		return next, nil
	}
}
