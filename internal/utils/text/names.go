package text

import (
	"strconv"
	"strings"
	"unicode"
)

const maxNameRunes = 64

// CleanName strips emoji, symbols and control characters from a display name
// and collapses whitespace. Letters, digits, marks and name punctuation stay.
func CleanName(name string) string {
	var b strings.Builder
	lastWasSpace := true
	runes := 0
	for _, r := range name {
		if runes >= maxNameRunes {
			break
		}
		switch {
		case unicode.IsSpace(r) || r == '_':
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
				runes++
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			b.WriteRune(r)
			lastWasSpace = false
			runes++
		case strings.ContainsRune(`-.'’`, r):
			if !lastWasSpace {
				b.WriteRune(r)
				runes++
			}
		}
	}
	return strings.TrimRight(b.String(), " -.'’")
}

// DisplayName builds a readable name: cleaned "first last", then @username,
// then the numeric id.
func DisplayName(id int64, username, firstName, lastName string) string {
	if name := CleanName(strings.TrimSpace(firstName + " " + lastName)); name != "" {
		return name
	}
	if username != "" {
		return "@" + username
	}
	return "id" + strconv.FormatInt(id, 10)
}

// Mention prefers @username so Telegram notifies the user.
func Mention(id int64, username, firstName, lastName string) string {
	if username != "" {
		return "@" + username
	}
	return DisplayName(id, username, firstName, lastName)
}
