package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the default domain for lang from localesDir. Missing
// catalogs are fine: Translate then returns the message id itself.
func Configure(localesDir, lang string) {
	gotext.Configure(localesDir, NormalizeLanguage(lang), "default")
}

// NormalizeLanguage reduces a locale such as "pl_PL.UTF-8" or "en-US" to the
// language code catalogs are stored under. The C and POSIX locales mean "en".
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, "_-.@"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ToLower(lang)
	if lang == "" || lang == "c" || lang == "posix" {
		return "en"
	}
	return lang
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}

// TranslatePlural picks the singular or plural form for n.
func TranslatePlural(msgID, msgIDPlural string, n int, vars ...interface{}) string {
	return gotext.GetN(msgID, msgIDPlural, n, vars...)
}
