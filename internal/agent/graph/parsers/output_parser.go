package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/handbook-assistant/server/internal/agent/model"
	errx "github.com/handbook-assistant/server/internal/core/error"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024 // 16KB
	maxErrSnippet = 200       // limit error snippet size
)

var (
	// ErrEmptyOutput is returned when the model produced no usable text.
	ErrEmptyOutput = errors.New("empty model output")
	// ErrMalformedOutput is returned when the output matches none of the accepted shapes.
	ErrMalformedOutput = errors.New("malformed model output")
)

// Verdict is a judge decision with the model's stated reason.
type Verdict struct {
	Pass      bool
	Rationale string
}

// ParseIntent accepts {"intent": "<label>"} or a bare label. Any label outside
// the closed set is model.ErrInvalidIntent; there is no default.
func ParseIntent(content string) (intent model.Intent, err error) {
	defer recoverParser("intent_parser", &err)

	body, err := prepare(content)
	if err != nil {
		return model.IntentUnset, err
	}

	var payload struct {
		Intent *string `json:"intent"`
	}
	if isJSONObject(body) {
		if jerr := json.Unmarshal([]byte(body), &payload); jerr != nil || payload.Intent == nil {
			return model.IntentUnset, fmt.Errorf("%w: %s", ErrMalformedOutput, safeSnippet(body))
		}
		return model.ParseIntent(*payload.Intent)
	}
	return model.ParseIntent(unquote(body))
}

// ParseRelevance accepts {"relevant": bool} or a bare true/false/yes/no.
func ParseRelevance(content string) (relevant bool, err error) {
	defer recoverParser("grade_parser", &err)

	body, err := prepare(content)
	if err != nil {
		return false, err
	}

	if isJSONObject(body) {
		var payload struct {
			Relevant *bool `json:"relevant"`
			Result   *bool `json:"result"`
		}
		if jerr := json.Unmarshal([]byte(body), &payload); jerr != nil {
			return false, fmt.Errorf("%w: %s", ErrMalformedOutput, safeSnippet(body))
		}
		switch {
		case payload.Relevant != nil:
			return *payload.Relevant, nil
		case payload.Result != nil:
			return *payload.Result, nil
		}
		return false, fmt.Errorf("%w: missing relevant field", ErrMalformedOutput)
	}
	return parseBoolWord(unquote(body))
}

// ParseVerdict accepts {"verdict": "yes"|"no", "rationale": "..."} or a bare yes/no.
func ParseVerdict(content string) (v Verdict, err error) {
	defer recoverParser("judge_parser", &err)

	body, err := prepare(content)
	if err != nil {
		return Verdict{}, err
	}

	if isJSONObject(body) {
		var payload struct {
			Verdict   string `json:"verdict"`
			Rationale string `json:"rationale"`
		}
		if jerr := json.Unmarshal([]byte(body), &payload); jerr != nil {
			return Verdict{}, fmt.Errorf("%w: %s", ErrMalformedOutput, safeSnippet(body))
		}
		pass, perr := parseBoolWord(payload.Verdict)
		if perr != nil {
			return Verdict{}, perr
		}
		return Verdict{Pass: pass, Rationale: strings.TrimSpace(payload.Rationale)}, nil
	}
	pass, perr := parseBoolWord(unquote(body))
	if perr != nil {
		return Verdict{}, perr
	}
	return Verdict{Pass: pass}, nil
}

// --- helpers ---

func recoverParser(component string, err *error) {
	if r := recover(); r != nil {
		logx.Error().Str("component", component).Msgf("panic recovered: %v", r)
		*err = errx.New(fmt.Errorf("%s panic", component), http.StatusInternalServerError, errx.SystemErrorMessage)
	}
}

// prepare bounds the content and strips markdown code fences.
func prepare(content string) (string, error) {
	if len(content) > maxContentLen {
		logx.Warn().
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("model output truncated due to size limit")
		cut := maxContentLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: invalid utf8", ErrMalformedOutput)
	}
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return "", ErrEmptyOutput
	}
	return s, nil
}

func isJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}

func parseBoolWord(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrMalformedOutput, safeSnippet(s))
	}
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
