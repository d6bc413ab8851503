package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jwkoh-dev/go-companion-backend/internal/domain"
	"github.com/jwkoh-dev/go-companion-backend/internal/emotion"
	"github.com/jwkoh-dev/go-companion-backend/internal/services"
)

func fptr(v float64) *float64 { return &v }

func TestSanitizeContent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello\r\nworld", "hello\nworld"},
		{"a\rb", "a\nb"},
		{"p1\n\n\n\n\np2", "p1\n\np2"},
		{"  padded  ", "padded"},
		{"\r\n\r\n", ""},
	}
	for _, tc := range cases {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Fatalf("sanitizeContent(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestPostMessage_Validation(t *testing.T) {
	turns := &fakeTurnSvc{
		answerFn: func(_ context.Context, _, _, _ string) (*services.TurnReply, error) {
			t.Fatal("service must not be called on invalid input")
			return nil, nil
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))

	if w := doJSON(t, r, http.MethodPost, "/rooms/nope/messages", `{"content":"hi"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad room id: status=%d", w.Code)
	}
	id := uuid.NewString()
	if w := doJSON(t, r, http.MethodPost, "/rooms/"+id+"/messages", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing content: status=%d", w.Code)
	}
	// Whitespace-only content survives binding but dies after sanitization.
	if w := doJSON(t, r, http.MethodPost, "/rooms/"+id+"/messages", `{"content":"  \r\n "}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank content: status=%d", w.Code)
	}
	// Over the fallback rune cap (2000 for non-concrete services).
	long := strings.Repeat("あ", 2001)
	body, _ := json.Marshal(PostMessageRequest{Content: long})
	if w := doJSON(t, r, http.MethodPost, "/rooms/"+id+"/messages", string(body), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("too long: status=%d", w.Code)
	}
}

func TestPostMessage_Success(t *testing.T) {
	var gotContent string
	turns := &fakeTurnSvc{
		answerFn: func(_ context.Context, userID, roomID, content string) (*services.TurnReply, error) {
			gotContent = content
			return &services.TurnReply{
				Message:          domain.Message{ID: "m1", RoomID: roomID, Role: domain.RoleAssistant, Content: "hey!"},
				State:            emotion.State{Affection: 25, Trust: 61},
				UserMessageDelta: emotion.Delta{Affection: fptr(5), Trust: fptr(1)},
			}, nil
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))
	id := uuid.NewString()

	w := doJSON(t, r, http.MethodPost, "/rooms/"+id+"/messages",
		`{"content":"hi\r\n\n\n\nthere"}`, map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotContent != "hi\n\nthere" {
		t.Fatalf("content not sanitized before service: %q", gotContent)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	for _, k := range []string{"message", "state", "userMessageDelta"} {
		if _, ok := resp[k]; !ok {
			t.Fatalf("missing %q in response: %s", k, w.Body.String())
		}
	}
	var delta emotion.Delta
	if err := json.Unmarshal(resp["userMessageDelta"], &delta); err != nil {
		t.Fatalf("delta json: %v", err)
	}
	if delta.Affection == nil || *delta.Affection != 5 {
		t.Fatalf("delta affection: %+v", delta)
	}
}

func TestPostMessage_EmptyDeltaOmitted(t *testing.T) {
	turns := &fakeTurnSvc{
		answerFn: func(_ context.Context, _, roomID, _ string) (*services.TurnReply, error) {
			return &services.TurnReply{
				Message: domain.Message{ID: "m2", RoomID: roomID, Role: domain.RoleAssistant, Content: "ok"},
				State:   emotion.DefaultState(),
			}, nil
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))

	w := doJSON(t, r, http.MethodPost, "/rooms/"+uuid.NewString()+"/messages", `{"content":"hi"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "userMessageDelta") {
		t.Fatalf("empty delta should be omitted: %s", w.Body.String())
	}
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrRoomNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrEmptyContent, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrStateConflict, http.StatusConflict, ErrCodeConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError, ErrCodeAnswerFailed},
	}
	for _, tc := range cases {
		turns := &fakeTurnSvc{
			answerFn: func(_ context.Context, _, _, _ string) (*services.TurnReply, error) {
				return nil, tc.err
			},
		}
		r := newTestRouter(New(nil, turns, nil, nil))
		w := doJSON(t, r, http.MethodPost, "/rooms/"+uuid.NewString()+"/messages", `{"content":"hi"}`, nil)
		if w.Code != tc.status {
			t.Fatalf("err=%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		var er ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &er)
		if er.Code != tc.code {
			t.Fatalf("err=%v: code=%q want %q", tc.err, er.Code, tc.code)
		}
	}
}

// parseSSE splits an SSE body into its decoded data payloads.
func parseSSE(t *testing.T, body string) []map[string]json.RawMessage {
	t.Helper()
	var out []map[string]json.RawMessage
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("bad SSE payload %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestStreamMessage_FragmentsThenDone(t *testing.T) {
	turns := &fakeTurnSvc{
		streamFn: func(_ context.Context, _, roomID, _ string) (<-chan services.TurnStreamEvent, error) {
			ch := make(chan services.TurnStreamEvent, 4)
			ch <- services.TurnStreamEvent{Content: "he"}
			ch <- services.TurnStreamEvent{Content: "llo"}
			ch <- services.TurnStreamEvent{Reply: &services.TurnReply{
				Message:          domain.Message{ID: "m3", RoomID: roomID, Role: domain.RoleAssistant, Content: "hello"},
				State:            emotion.State{Affection: 30, Trust: 62},
				UserMessageDelta: emotion.Delta{Affection: fptr(3)},
			}}
			close(ch)
			return ch, nil
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))

	w := doJSON(t, r, http.MethodPost, "/rooms/"+uuid.NewString()+"/messages/stream", `{"content":"hi"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%q", ct)
	}
	if w.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatalf("proxy buffering not disabled")
	}

	events := parseSSE(t, w.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %s", len(events), w.Body.String())
	}
	var frag streamFragment
	_ = json.Unmarshal(events[0]["content"], &frag.Content)
	if frag.Content != "he" {
		t.Fatalf("first fragment: %v", events[0])
	}
	last := events[2]
	var done bool
	_ = json.Unmarshal(last["done"], &done)
	if !done {
		t.Fatalf("terminal event missing done: %v", last)
	}
	if _, ok := last["message"]; !ok {
		t.Fatalf("terminal event missing message: %v", last)
	}
	if _, ok := last["state"]; !ok {
		t.Fatalf("terminal event missing state: %v", last)
	}
	if _, ok := last["userMessageDelta"]; !ok {
		t.Fatalf("terminal event missing userMessageDelta: %v", last)
	}
}

func TestStreamMessage_SyncErrorIsPlainJSON(t *testing.T) {
	turns := &fakeTurnSvc{
		streamFn: func(_ context.Context, _, _, _ string) (<-chan services.TurnStreamEvent, error) {
			return nil, services.ErrRoomNotFound
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))

	w := doJSON(t, r, http.MethodPost, "/rooms/"+uuid.NewString()+"/messages/stream", `{"content":"hi"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("sync errors should not open the stream, content-type=%q", ct)
	}
}

func TestStreamMessage_MidStreamErrorEvent(t *testing.T) {
	turns := &fakeTurnSvc{
		streamFn: func(_ context.Context, _, _, _ string) (<-chan services.TurnStreamEvent, error) {
			ch := make(chan services.TurnStreamEvent, 2)
			ch <- services.TurnStreamEvent{Content: "par"}
			ch <- services.TurnStreamEvent{Err: services.ErrStateConflict}
			close(ch)
			return ch, nil
		},
	}
	r := newTestRouter(New(nil, turns, nil, nil))

	w := doJSON(t, r, http.MethodPost, "/rooms/"+uuid.NewString()+"/messages/stream", `{"content":"hi"}`, nil)
	// Headers are already out by the time the error arrives.
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	events := parseSSE(t, w.Body.String())
	if len(events) != 2 {
		t.Fatalf("expected fragment + error, got %d events", len(events))
	}
	raw, ok := events[1]["error"]
	if !ok {
		t.Fatalf("terminal event is not an error: %v", events[1])
	}
	var er ErrorResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if er.Code != ErrCodeConflict {
		t.Fatalf("code=%q", er.Code)
	}
}
