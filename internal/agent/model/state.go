package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// ErrInvalidIntent is returned when a label is not one of the three known intents.
var ErrInvalidIntent = errors.New("invalid intent")

// Intent is the coarse category assigned to a user turn before routing.
// The zero value means the classifier has not run for the current turn.
type Intent uint8

const (
	IntentUnset Intent = iota
	IntentConversational
	IntentHandbook
	IntentOffTopic
)

// String returns the wire label of the intent.
func (i Intent) String() string {
	switch i {
	case IntentConversational:
		return "conversational"
	case IntentHandbook:
		return "handbook"
	case IntentOffTopic:
		return "off_topic"
	case IntentUnset:
		return ""
	default:
		return fmt.Sprintf("intent(%d)", uint8(i))
	}
}

// ParseIntent maps a wire label onto an Intent. Labels are matched
// case-insensitively after trimming; anything else is ErrInvalidIntent.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conversational":
		return IntentConversational, nil
	case "handbook":
		return IntentHandbook, nil
	case "off_topic":
		return IntentOffTopic, nil
	default:
		return IntentUnset, fmt.Errorf("%w: %q", ErrInvalidIntent, s)
	}
}

// Source is the label attached to an answer for UI and evaluation purposes.
type Source uint8

const (
	SourceUnset Source = iota
	SourceHandbook
	SourceConversational
	SourceOffTopic
)

func (s Source) String() string {
	switch s {
	case SourceHandbook:
		return "handbook"
	case SourceConversational:
		return "conversational"
	case SourceOffTopic:
		return "off_topic"
	case SourceUnset:
		return ""
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// ParseSource is the inverse of Source.String. The empty string maps to SourceUnset.
func ParseSource(s string) (Source, error) {
	switch s {
	case "handbook":
		return SourceHandbook, nil
	case "conversational":
		return SourceConversational, nil
	case "off_topic":
		return SourceOffTopic, nil
	case "":
		return SourceUnset, nil
	default:
		return SourceUnset, fmt.Errorf("invalid source %q", s)
	}
}

// MarshalText lets Source travel as its label in JSON payloads.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Optional carries a value together with whether it was set.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an unset Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSet reports whether the optional holds a value.
func (o Optional[T]) IsSet() bool {
	return o.ok
}

// OrElse returns the value when set, otherwise def.
func (o Optional[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

// or returns o when set, otherwise fallback.
func (o Optional[T]) or(fallback Optional[T]) Optional[T] {
	if o.ok {
		return o
	}
	return fallback
}

// ConversationState is the persisted per-thread state.
//
// Messages is the only field carried across turns; every other field is
// turn-scoped and reset by BeginTurn. Documents and Relevant are populated
// only when the handbook path ran in the current turn.
type ConversationState struct {
	ThreadID  string
	Messages  []*schema.Message
	Documents []*schema.Document
	Intent    Intent
	Relevant  Optional[bool]
	Answer    string
	Source    Source
}

// NewConversationState returns the empty state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{ThreadID: threadID, Messages: []*schema.Message{}}
}

// Clone returns a copy whose slices can be appended to without aliasing s.
// Message and document pointers are shared; nodes never mutate them in place.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]*schema.Message(nil), s.Messages...)
	if s.Documents != nil {
		c.Documents = append(make([]*schema.Document, 0, len(s.Documents)), s.Documents...)
	}
	return &c
}

// Apply merges a partial update into the state: messages are appended,
// set fields replace the previous value, unset fields are left untouched.
func (s *ConversationState) Apply(u Update) {
	if len(u.Messages) > 0 {
		s.Messages = append(s.Messages, u.Messages...)
	}
	if v, ok := u.Documents.Get(); ok {
		s.Documents = v
	}
	if v, ok := u.Intent.Get(); ok {
		s.Intent = v
	}
	if u.Relevant.IsSet() {
		s.Relevant = u.Relevant
	}
	if v, ok := u.ClearRelevant.Get(); ok && v {
		s.Relevant = None[bool]()
	}
	if v, ok := u.Answer.Get(); ok {
		s.Answer = v
	}
	if v, ok := u.Source.Get(); ok {
		s.Source = v
	}
}

// LastUserMessage returns the content of the most recent user message.
func (s *ConversationState) LastUserMessage() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m != nil && m.Role == schema.User {
			return m.Content, true
		}
	}
	return "", false
}

// Update is the partial state a node returns. Only the fields the node
// computed are set.
type Update struct {
	Messages      []*schema.Message
	Documents     Optional[[]*schema.Document]
	Intent        Optional[Intent]
	Relevant      Optional[bool]
	ClearRelevant Optional[bool]
	Answer        Optional[string]
	Source        Optional[Source]
}

// Then composes u followed by next so that applying the result equals
// applying u and then next.
func (u Update) Then(next Update) Update {
	out := Update{
		Documents: next.Documents.or(u.Documents),
		Intent:    next.Intent.or(u.Intent),
		Answer:    next.Answer.or(u.Answer),
		Source:    next.Source.or(u.Source),
	}
	if n := len(u.Messages) + len(next.Messages); n > 0 {
		out.Messages = make([]*schema.Message, 0, n)
		out.Messages = append(out.Messages, u.Messages...)
		out.Messages = append(out.Messages, next.Messages...)
	}
	switch {
	case next.Relevant.IsSet():
		out.Relevant = next.Relevant
	case next.ClearRelevant.OrElse(false):
		out.ClearRelevant = next.ClearRelevant
	default:
		out.Relevant = u.Relevant
		out.ClearRelevant = u.ClearRelevant
	}
	return out
}

// BeginTurn opens a turn: it appends the user message and resets every
// turn-scoped field.
func BeginTurn(question string) Update {
	return Update{
		Messages:      []*schema.Message{schema.UserMessage(question)},
		Documents:     Some[[]*schema.Document](nil),
		Intent:        Some(IntentUnset),
		ClearRelevant: Some(true),
		Answer:        Some(""),
		Source:        Some(SourceUnset),
	}
}
