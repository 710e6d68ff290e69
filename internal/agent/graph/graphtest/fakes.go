// Package graphtest provides deterministic capability fakes for exercising
// the conversation graph without a model provider.
package graphtest

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/handbook-assistant/server/internal/agent/model"
)

type ClassifierFunc func(ctx context.Context, window []*schema.Message) (model.Intent, error)

func (f ClassifierFunc) Classify(ctx context.Context, window []*schema.Message) (model.Intent, error) {
	return f(ctx, window)
}

type GraderFunc func(ctx context.Context, question string, docs []*schema.Document) (bool, error)

func (f GraderFunc) Grade(ctx context.Context, question string, docs []*schema.Document) (bool, error) {
	return f(ctx, question, docs)
}

type GeneratorFunc func(ctx context.Context, system string, history []*schema.Message) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, system string, history []*schema.Message) (string, error) {
	return f(ctx, system, history)
}

type TranslatorFunc func(ctx context.Context, text, targetLang string) (string, error)

func (f TranslatorFunc) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return f(ctx, text, targetLang)
}

type DetectorFunc func(text string) (string, error)

func (f DetectorFunc) Detect(text string) (string, error) {
	return f(text)
}

type RetrieverFunc func(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	return f(ctx, query, opts...)
}

// Counter counts calls made through the fakes it wraps.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() { c.n.Add(1) }

func (c *Counter) Load() int { return int(c.n.Load()) }

// lastUser returns the last user message in a window.
func lastUser(window []*schema.Message) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] != nil && window[i].Role == schema.User {
			return window[i].Content
		}
	}
	return ""
}

// KeywordClassifier labels the last user message by the first rule whose
// keyword appears in it as whole words (case-insensitive), otherwise fallback.
func KeywordClassifier(rules []Rule, fallback model.Intent) ClassifierFunc {
	return func(_ context.Context, window []*schema.Message) (model.Intent, error) {
		text := " " + normalize(lastUser(window)) + " "
		for _, r := range rules {
			if strings.Contains(text, " "+normalize(r.Keyword)+" ") {
				return r.Intent, nil
			}
		}
		return fallback, nil
	}
}

// Rule maps a keyword onto an intent.
type Rule struct {
	Keyword string
	Intent  model.Intent
}

// DefaultRules classify the canonical evaluation questions.
var DefaultRules = []Rule{
	{Keyword: "hi", Intent: model.IntentConversational},
	{Keyword: "hello", Intent: model.IntentConversational},
	{Keyword: "thanks", Intent: model.IntentConversational},
	{Keyword: "thank you", Intent: model.IntentConversational},
	{Keyword: "my name", Intent: model.IntentConversational},
	{Keyword: "docker", Intent: model.IntentOffTopic},
	{Keyword: "python", Intent: model.IntentOffTopic},
	{Keyword: "weather", Intent: model.IntentOffTopic},
	{Keyword: "recipe", Intent: model.IntentOffTopic},
}

// Corpus returns passages sharing at least one significant word with the query.
func Corpus(docs ...*schema.Document) RetrieverFunc {
	return func(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
		k := 5
		o := retriever.GetCommonOptions(&retriever.Options{TopK: &k}, opts...)
		if o.TopK != nil {
			k = *o.TopK
		}
		words := significantWords(query)
		var out []*schema.Document
		for _, d := range docs {
			content := strings.ToLower(d.Content)
			for _, w := range words {
				if strings.Contains(content, w) {
					out = append(out, d)
					break
				}
			}
			if len(out) == k {
				break
			}
		}
		return out, nil
	}
}

// OverlapGrader marks passages relevant when any shares a significant word with the question.
func OverlapGrader() GraderFunc {
	return func(_ context.Context, question string, docs []*schema.Document) (bool, error) {
		words := significantWords(question)
		for _, d := range docs {
			content := strings.ToLower(d.Content)
			for _, w := range words {
				if strings.Contains(content, w) {
					return true, nil
				}
			}
		}
		return false, nil
	}
}

// EchoGenerator answers with prefix followed by the last user message.
func EchoGenerator(prefix string) GeneratorFunc {
	return func(_ context.Context, _ string, history []*schema.Message) (string, error) {
		return prefix + lastUser(history), nil
	}
}

// English always detects English.
func English() DetectorFunc {
	return func(string) (string, error) { return "en", nil }
}

// normalize lowercases s and turns every non-alphanumeric rune into a space.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

var stopWords = map[string]bool{
	"what": true, "does": true, "have": true, "with": true, "that": true, "this": true,
	"from": true, "your": true, "about": true, "many": true, "when": true, "where": true,
	"which": true, "there": true, "much": true, "into": true, "company": true,
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(normalize(s)) {
		if len(w) > 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}
