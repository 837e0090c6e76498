package parse

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// StripCodeFence removes a single leading fence (with optional language tag)
// and a single trailing fence from a model response. Text without fences is
// returned trimmed.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		end := 0
		for end < len(s) && isTagByte(s[end]) {
			end++
		}
		// only treat the word as a language tag when the payload starts after it
		if end == len(s) || isPayloadStart(s[end]) {
			s = s[end:]
		}
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)

	return strings.TrimSpace(s)
}

func isTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}

func isPayloadStart(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '{', '[':
		return true
	}
	return false
}

// embeddedObject returns the span from the first '{' to the last '}' when the
// response wraps a JSON object in prose
func embeddedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// truncateRunes cuts s to at most n runes and reports whether it did
func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:n]), true
}
