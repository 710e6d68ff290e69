package nodes

import (
	"context"

	"github.com/handbook-assistant/server/internal/agent/model"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

const english = "en"

// Templater localises fixed English replies. It never fails: detection or
// translation problems fall back to the English text on a logged degraded path.
type Templater struct {
	detector   model.LanguageDetector
	translator model.Translator
}

func NewTemplater(detector model.LanguageDetector, translator model.Translator) *Templater {
	return &Templater{detector: detector, translator: translator}
}

// Reply returns template in the language of userText when possible.
func (t *Templater) Reply(ctx context.Context, template, userText string) string {
	if t == nil || t.detector == nil {
		return template
	}
	lang, err := t.detector.Detect(userText)
	if err != nil {
		logx.Warn().Err(err).Str("event", "degraded").Str("stage", "detect").Msg("language detection failed, replying in English")
		return template
	}
	if lang == "" || lang == english {
		return template
	}
	if t.translator == nil {
		logx.Warn().Str("event", "degraded").Str("stage", "translate").Str("lang", lang).Msg("no translator configured, replying in English")
		return template
	}
	out, err := t.translator.Translate(ctx, template, lang)
	if err != nil || out == "" {
		logx.Warn().Err(err).Str("event", "degraded").Str("stage", "translate").Str("lang", lang).Msg("translation failed, replying in English")
		return template
	}
	return out
}
