package synthesizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var fencePattern = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*\n?(.*?)\n?\\s*```\\s*$")

// CleanResponse strips code-fence markers and normalizes typographic
// quotes and trailing commas outside string literals. Cleaning is
// idempotent: applying it to already-clean text changes nothing.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	return normalizeOutsideStrings(s)
}

// normalizeOutsideStrings rewrites typographic quotes and removes
// trailing commas, but only in structural positions. Content inside
// string literals passes through untouched, so a narrative containing
// ", ]" or smart quotes keeps its exact text.
func normalizeOutsideStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	smartClose := false // string was opened with a typographic quote
	escaped := false

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])

		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteRune(r)
			case r == '\\':
				escaped = true
				b.WriteRune(r)
			case !smartClose && r == '"':
				inString = false
				b.WriteRune(r)
			case smartClose && r == '”':
				inString = false
				smartClose = false
				b.WriteByte('"')
			default:
				b.WriteRune(r)
			}
			i += size
			continue
		}

		switch r {
		case '"':
			inString = true
			b.WriteRune(r)
		case '“':
			inString = true
			smartClose = true
			b.WriteByte('"')
		case '”':
			b.WriteByte('"')
		case '‘', '’':
			b.WriteByte('\'')
		case ',':
			if j := nextNonSpace(s, i+size); j < len(s) && (s[j] == '}' || s[j] == ']') {
				// trailing comma before a closer: drop it
			} else {
				b.WriteByte(',')
			}
		default:
			b.WriteRune(r)
		}
		i += size
	}

	return b.String()
}

func nextNonSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// RepairStructure closes unterminated strings, braces and brackets.
// Running it on already-balanced input returns the input unchanged, so
// repair is idempotent.
func RepairStructure(s string) string {
	inString := false
	escaped := false
	var stack []byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// ExtractFirstObject returns the first syntactically complete JSON
// object substring, or "" when none exists.
func ExtractFirstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	inString := false
	escaped := false
	depth := 0

	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
