package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Classifier maps a bounded window of the conversation, ending with the
// current user message, to exactly one intent.
type Classifier interface {
	Classify(ctx context.Context, window []*schema.Message) (Intent, error)
}

// Grader decides whether at least one passage is useful for answering the question.
type Grader interface {
	Grade(ctx context.Context, question string, docs []*schema.Document) (bool, error)
}

// Generator produces the assistant reply from a system instruction and a message history.
type Generator interface {
	Generate(ctx context.Context, system string, history []*schema.Message) (string, error)
}

// Translator translates text into the target language (ISO 639-1). Best effort.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// LanguageDetector returns the ISO 639-1 code of the text's language.
type LanguageDetector interface {
	Detect(text string) (string, error)
}
