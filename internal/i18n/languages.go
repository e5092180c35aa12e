package i18n

import "strings"

var languageNames = map[string]string{
	"en": "English",
	"ru": "Русский",
}

// LanguageName returns the native name of a language code.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
