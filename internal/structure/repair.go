package structure

import (
	"regexp"
	"strings"
	"unicode"
)

const fence = "```"

var rootSignature = regexp.MustCompile(`\{\s*"type"\s*:\s*"doc"`)

// ExtractJSONObject pulls the document object out of a model response. An opening code fence that
// comes before the first brace is dropped along with its language tag. Leading prose is skipped up
// to the root signature (or the first brace) and the object is cut at the matching close brace, so
// closing fences and trailing commentary are ignored. Fences inside JSON strings are left alone.
// It reports false when no balanced object exists.
func ExtractJSONObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if open := strings.Index(s, fence); open >= 0 {
		if brace := strings.IndexByte(s, '{'); brace < 0 || open < brace {
			s = strings.TrimSpace(strings.TrimLeftFunc(s[open+len(fence):], unicode.IsLetter))
		}
	}
	if !strings.HasPrefix(s, "{") {
		if loc := rootSignature.FindStringIndex(s); loc != nil {
			s = s[loc[0]:]
		} else if i := strings.IndexByte(s, '{'); i >= 0 {
			s = s[i:]
		} else {
			return "", false
		}
	}
	end := matchingBrace(s)
	if end < 0 {
		return "", false
	}
	return s[:end+1], true
}

// matchingBrace returns the index of the brace closing s[0], skipping braces inside strings.
func matchingBrace(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
