package parsers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/model"
)

func TestParseIntent(t *testing.T) {
	ok := map[string]model.Intent{
		`{"intent": "handbook"}`:                 model.IntentHandbook,
		"```json\n{\"intent\":\"off_topic\"}\n```": model.IntentOffTopic,
		"conversational":                         model.IntentConversational,
		` "Handbook" `:                           model.IntentHandbook,
	}
	for in, want := range ok {
		got, err := ParseIntent(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseIntent(`{"intent": "weather"}`)
	assert.ErrorIs(t, err, model.ErrInvalidIntent)
	_, err = ParseIntent("I think this is a handbook question")
	assert.ErrorIs(t, err, model.ErrInvalidIntent)
	_, err = ParseIntent(`{"label": "handbook"}`)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = ParseIntent("   ")
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestParseRelevance(t *testing.T) {
	cases := map[string]bool{
		`{"relevant": true}`:  true,
		`{"relevant": false}`: false,
		`{"result": true}`:    true,
		"yes":                 true,
		"False":               false,
	}
	for in, want := range cases {
		got, err := ParseRelevance(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRelevance(`{"relevant": "maybe"}`)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = ParseRelevance("probably")
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict(`{"verdict": "yes", "rationale": " matches the handbook "}`)
	require.NoError(t, err)
	assert.True(t, v.Pass)
	assert.Equal(t, "matches the handbook", v.Rationale)

	v, err = ParseVerdict("no")
	require.NoError(t, err)
	assert.False(t, v.Pass)

	_, err = ParseVerdict(`{"verdict": "partially"}`)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestOversizedOutputIsTruncated(t *testing.T) {
	_, err := ParseIntent(strings.Repeat("x", maxContentLen*2))
	assert.ErrorIs(t, err, model.ErrInvalidIntent)
}

func TestOversizedOutputKeepsRuneBoundary(t *testing.T) {
	// the leading byte shifts every two-byte rune so the limit lands mid-rune
	out, err := prepare("x" + strings.Repeat("é", maxContentLen))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(out))
	assert.Len(t, out, maxContentLen-1)

	_, err = ParseIntent(strings.Repeat("€", maxContentLen))
	assert.ErrorIs(t, err, model.ErrInvalidIntent)
	assert.NotErrorIs(t, err, ErrMalformedOutput)
}
