package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Name and message limits, counted in runes after normalization.
const (
	MaxProjectNameRunes = 255
	MaxTokenNameRunes   = 100
	MaxMessageRunes     = 1000
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeName applies NFC, trims, and collapses inner whitespace so that
// visually identical names compare equal.
func normalizeName(s string) string {
	s = norm.NFC.String(s)
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// runeLen counts characters rather than bytes.
func runeLen(s string) int { return utf8.RuneCountInString(s) }

// normalizeMessage trims an optional status message. Blank messages become nil.
func normalizeMessage(msg *string) (*string, error) {
	if msg == nil {
		return nil, nil
	}
	m := strings.TrimSpace(norm.NFC.String(*msg))
	if m == "" {
		return nil, nil
	}
	if runeLen(m) > MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	return &m, nil
}
