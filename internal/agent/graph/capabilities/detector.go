package capabilities

import (
	"errors"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/handbook-assistant/server/internal/agent/model"
)

// ErrNoText is returned when there is nothing to detect a language from.
var ErrNoText = errors.New("no text to detect language from")

// Detector detects languages offline with whatlanggo. Unreliable
// detections count as English, which keeps short greetings untranslated.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

func (d *Detector) Detect(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "en", nil
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "en", nil
	}
	return code, nil
}

var _ model.LanguageDetector = (*Detector)(nil)
