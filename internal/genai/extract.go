package genai

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// contentScanner incrementally pulls the decoded value of the top-level
// "content" string out of a structured-output JSON document that arrives in
// arbitrary fragments. Feed returns only the newly decoded text since the
// previous call, which is what gets relayed to the client as a stream
// fragment while the full document is still in flight.
type contentScanner struct {
	raw     strings.Builder
	emitted int // bytes of decoded content already returned
	closed  bool
}

// Feed appends a raw JSON fragment and returns newly available content text.
func (s *contentScanner) Feed(fragment string) string {
	if s.closed {
		return ""
	}
	s.raw.WriteString(fragment)

	decoded, done := extractContent(s.raw.String())
	s.closed = done
	if len(decoded) <= s.emitted {
		return ""
	}
	out := decoded[s.emitted:]
	s.emitted = len(decoded)
	return out
}

// extractContent decodes as much of the "content" string value as the raw
// prefix allows. done is true once the closing quote has been seen. A raw
// prefix that ends mid escape sequence decodes up to the escape only.
func extractContent(raw string) (decoded string, done bool) {
	idx := strings.Index(raw, `"content"`)
	if idx < 0 {
		return "", false
	}
	i := idx + len(`"content"`)

	// Skip whitespace, colon, whitespace, then the opening quote.
	for i < len(raw) && isJSONSpace(raw[i]) {
		i++
	}
	if i >= len(raw) || raw[i] != ':' {
		return "", false
	}
	i++
	for i < len(raw) && isJSONSpace(raw[i]) {
		i++
	}
	if i >= len(raw) || raw[i] != '"' {
		return "", false
	}
	i++

	var b strings.Builder
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '"':
			return b.String(), true
		case c == '\\':
			r, n, ok := decodeEscape(raw[i:])
			if !ok {
				// Incomplete escape at the end of the fragment.
				return b.String(), false
			}
			b.WriteRune(r)
			i += n
		default:
			// Hold back a possibly split multi-byte UTF-8 sequence.
			r, size := utf8.DecodeRuneInString(raw[i:])
			if r == utf8.RuneError && size == 1 && !utf8.FullRuneInString(raw[i:]) {
				return b.String(), false
			}
			b.WriteString(raw[i : i+size])
			i += size
		}
	}
	return b.String(), false
}

// decodeEscape decodes one JSON escape sequence at the start of s, including
// surrogate pairs. ok is false when s ends before the sequence completes.
func decodeEscape(s string) (r rune, n int, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	switch s[1] {
	case '"', '\\', '/':
		return rune(s[1]), 2, true
	case 'b':
		return '\b', 2, true
	case 'f':
		return '\f', 2, true
	case 'n':
		return '\n', 2, true
	case 'r':
		return '\r', 2, true
	case 't':
		return '\t', 2, true
	case 'u':
		if len(s) < 6 {
			return 0, 0, false
		}
		hi, valid := parseHex4(s[2:6])
		if !valid {
			return utf8.RuneError, 6, true
		}
		if utf16.IsSurrogate(rune(hi)) {
			if len(s) < 12 {
				return 0, 0, false
			}
			if s[6] == '\\' && s[7] == 'u' {
				if lo, v2 := parseHex4(s[8:12]); v2 {
					if c := utf16.DecodeRune(rune(hi), rune(lo)); c != utf8.RuneError {
						return c, 12, true
					}
				}
			}
			return utf8.RuneError, 6, true
		}
		return rune(hi), 6, true
	default:
		return utf8.RuneError, 2, true
	}
}

func parseHex4(s string) (uint32, bool) {
	var v uint32
	for i := 0; i < 4; i++ {
		c := s[i]
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= uint32(c - '0')
		case c >= 'a' && c <= 'f':
			v |= uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= uint32(c-'A') + 10
		default:
			return 0, false
		}
	}
	return v, true
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
