package i18n

import (
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/shiftbot/resources"
)

const (
	translationsFile = "i18n/translations.yml"
	baseLanguage     = "en"
)

var state struct {
	once         sync.Once
	translations map[string]map[string]string
	languages    []string
}

func load() {
	state.translations = map[string]map[string]string{}
	content, err := resources.FS.ReadFile(translationsFile)
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load translations")
		return
	}
	if err := yaml.Unmarshal(content, &state.translations); err != nil {
		log.WithField("error", err.Error()).Error("cant unmarshal translations")
		return
	}

	seen := map[string]struct{}{baseLanguage: {}}
	for _, locales := range state.translations {
		for code := range locales {
			seen[strings.ToLower(code)] = struct{}{}
		}
	}
	for code := range seen {
		state.languages = append(state.languages, code)
	}
	sort.Strings(state.languages)
}

// Get returns the translation of an English key, or the key itself.
func Get(key, lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" || lang == baseLanguage {
		return key
	}
	state.once.Do(load)
	if res, ok := state.translations[key][strings.ToUpper(lang)]; ok && res != "" {
		return res
	}
	log.WithField("context", "i18n").Tracef("no %s translation for key %q", lang, key)
	return key
}

// GetLanguagesList lists language codes that have at least one translation.
func GetLanguagesList() []string {
	state.once.Do(load)
	return append([]string(nil), state.languages...)
}

// Supported reports whether lang has translations.
func Supported(lang string) bool {
	lang = strings.ToLower(lang)
	for _, code := range GetLanguagesList() {
		if code == lang {
			return true
		}
	}
	return false
}
