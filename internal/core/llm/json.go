package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject returns the first balanced, brace-delimited substring of text
// that parses as a JSON object. Backends often wrap JSON in prose or markdown
// fences. Returns false when no such object exists.
func ExtractJSONObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start != -1; {
		if end := matchingBrace(text, start); end != -1 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next == -1 {
			break
		}

		start += next + 1
	}

	return "", false
}

// matchingBrace finds the index of the brace closing the one at open, honoring
// JSON string literals and escapes. Returns -1 if unbalanced.
func matchingBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false

	for i := open; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
