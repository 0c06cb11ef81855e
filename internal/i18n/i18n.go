package i18n

import (
	"context"
	"strings"

	"github.com/BatmanBruc/bat-bot-referral/internal/contextkeys"
)

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ru") {
		return RU
	}
	return EN
}

func Parse(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ru":
		return RU
	default:
		return EN
	}
}

// FromContext returns the language stored by the message analyzer, EN when
// none was set.
func FromContext(ctx context.Context) Lang {
	if v, ok := contextkeys.GetLang(ctx); ok {
		return Parse(v)
	}
	return EN
}

// Pick chooses between an English and a Russian variant.
func Pick(lang Lang, en, ru string) string {
	if lang == RU {
		return ru
	}
	return en
}
