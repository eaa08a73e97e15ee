package clip

import (
	"strings"
	"unicode/utf8"
)

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Headline is the three-part title card shown for a clip preview:
// the first three words, an accented fourth word, then the next four.
type Headline struct {
	Lead   string `json:"lead"`
	Accent string `json:"accent"`
	Tail   string `json:"tail"`
}

// HeadlineOf builds the upper-cased preview headline for script text.
func HeadlineOf(text string) Headline {
	words := strings.Fields(text)
	part := func(from, to int) string {
		if from >= len(words) {
			return ""
		}
		if to > len(words) {
			to = len(words)
		}
		return strings.ToUpper(strings.Join(words[from:to], " "))
	}
	return Headline{
		Lead:   part(0, 3),
		Accent: part(3, 4),
		Tail:   part(4, 8),
	}
}

// String joins the non-empty parts with spaces.
func (h Headline) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{h.Lead, h.Accent, h.Tail} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
