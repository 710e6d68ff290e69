package capabilities

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/handbook-assistant/server/internal/agent/graph/prompts"
	"github.com/handbook-assistant/server/internal/agent/model"
)

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"ja": "Japanese",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"th": "Thai",
	"zh": "Chinese",
}

// Translator translates short English templates with a chat model.
type Translator struct {
	chain *promptChain
	opts  *options
}

func NewTranslator(ctx context.Context, cm einomodel.BaseChatModel, opts ...Option) (*Translator, error) {
	chain, err := compilePromptChain(ctx, "translator", prompts.TranslatorTemplate(), cm)
	if err != nil {
		return nil, err
	}
	return &Translator{chain: chain, opts: newOptions(opts)}, nil
}

func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(targetLang))
	if lang == "" || lang == "en" {
		return text, nil
	}
	vars := map[string]any{
		prompts.KeyLanguage: languageName(lang),
		prompts.KeyText:     text,
	}
	var out string
	err := t.opts.policy.Do(ctx, "translator", func(ctx context.Context) error {
		content, err := t.chain.invoke(ctx, vars, t.opts.invokeOptions()...)
		if err != nil {
			return err
		}
		if content == "" {
			return fmt.Errorf("translator returned empty content")
		}
		out = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// languageName returns an English name for an ISO 639-1 code, or the code itself.
func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return fmt.Sprintf("the language with ISO 639-1 code %q", code)
}

var _ model.Translator = (*Translator)(nil)
