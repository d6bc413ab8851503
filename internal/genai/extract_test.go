package genai

import (
	"strings"
	"testing"
)

// feedAll drives a scanner with the given fragments and returns the
// concatenated output and each non-empty emission.
func feedAll(t *testing.T, fragments []string) (string, []string) {
	t.Helper()
	var s contentScanner
	var all strings.Builder
	var parts []string
	for _, f := range fragments {
		if out := s.Feed(f); out != "" {
			all.WriteString(out)
			parts = append(parts, out)
		}
	}
	return all.String(), parts
}

func TestContentScanner_WholeDocumentAtOnce(t *testing.T) {
	got, _ := feedAll(t, []string{`{"content":"hello there","stateDelta":{"affection":1,"jealousy":0,"anger":0,"trust":0}}`})
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestContentScanner_FragmentedArbitrarily(t *testing.T) {
	doc := `{"content":"good morning, sleepyhead","stateDelta":{"affection":3,"jealousy":0,"anger":0,"trust":0}}`
	for _, size := range []int{1, 2, 3, 7, 13} {
		var frags []string
		for i := 0; i < len(doc); i += size {
			end := i + size
			if end > len(doc) {
				end = len(doc)
			}
			frags = append(frags, doc[i:end])
		}
		got, _ := feedAll(t, frags)
		if got != "good morning, sleepyhead" {
			t.Fatalf("chunk size %d: got %q", size, got)
		}
	}
}

func TestContentScanner_EscapesAcrossBoundaries(t *testing.T) {
	got, _ := feedAll(t, []string{`{"content":"line one\`, `nline two \"quoted\"`, `","stateDelta":{}}`})
	if got != "line one\nline two \"quoted\"" {
		t.Fatalf("got %q", got)
	}
}

func TestContentScanner_UnicodeEscapes(t *testing.T) {
	// \u up to the hex digits split across fragments, plus a surrogate pair.
	got, _ := feedAll(t, []string{`{"content":"\u`, `d83d\ude00 hi 안`, `녕"}`})
	if got != "\U0001F600 hi 안녕" {
		t.Fatalf("got %q", got)
	}
}

func TestContentScanner_MultibyteUTF8SplitMidRune(t *testing.T) {
	raw := `{"content":"잘 잤어?"}`
	// Split inside the first 3-byte Hangul sequence.
	idx := strings.Index(raw, "잘") + 1
	got, _ := feedAll(t, []string{raw[:idx], raw[idx:]})
	if got != "잘 잤어?" {
		t.Fatalf("got %q", got)
	}
}

func TestContentScanner_StopsAtClosingQuote(t *testing.T) {
	var s contentScanner
	s.Feed(`{"content":"done","stateDelta"`)
	if out := s.Feed(`:{"affection":5}}`); out != "" {
		t.Fatalf("emitted %q after content closed", out)
	}
}

func TestContentScanner_NothingBeforeContentKey(t *testing.T) {
	var s contentScanner
	if out := s.Feed(`{"state`); out != "" {
		t.Fatalf("emitted %q before content key", out)
	}
}
