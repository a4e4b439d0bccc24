package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
	"github.com/zhouzirui/sahayak/backend/internal/service/escalation"
	"github.com/zhouzirui/sahayak/backend/internal/service/turn"
)

type fakeTurns struct {
	started map[string]*chat.Record
	result  turn.Result
	err     error
	texts   []string
}

func newFakeTurns() *fakeTurns {
	return &fakeTurns{started: make(map[string]*chat.Record)}
}

func (f *fakeTurns) Start(_ context.Context, userID string) (*chat.Record, error) {
	if userID == "" {
		return nil, turn.ErrUserIDRequired
	}
	record := chat.NewRecord(userID, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	f.started[userID] = record
	return record, nil
}

func (f *fakeTurns) HandleTurn(_ context.Context, userID, text string) (turn.Result, error) {
	f.texts = append(f.texts, text)
	if _, ok := f.started[userID]; !ok {
		return turn.Result{Text: turn.NoSessionText}, turn.ErrNoActiveSession
	}
	return f.result, f.err
}

func (f *fakeTurns) History(_ context.Context, userID string) (*chat.Record, error) {
	record, ok := f.started[userID]
	if !ok {
		return nil, turn.ErrRecordNotFound
	}
	return record, nil
}

func setupRouter(turns TurnService) *chi.Mux {
	handler := New(turns, nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	handler.RegisterWebSocketRoutes(r)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStartSession(t *testing.T) {
	r := setupRouter(newFakeTurns())

	resp := postJSON(r, "/users/u1/session", `{}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.UserID != "u1" || body.Messages != 0 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestSendMessageReturnsResources(t *testing.T) {
	turns := newFakeTurns()
	turns.result = turn.Result{TurnID: "t1", Text: "wrapped reply", Risk: chat.RiskCrisis}
	r := setupRouter(turns)
	postJSON(r, "/users/u1/session", `{}`)

	resp := postJSON(r, "/users/u1/messages", `{"message":"I want to die"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body turnResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Reply != "wrapped reply" || body.RiskLevel != chat.RiskCrisis || !body.Persisted {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Resources) != len(escalation.Resources(chat.RiskCrisis)) {
		t.Fatalf("expected crisis resources, got %+v", body.Resources)
	}
	if turns.texts[0] != "I want to die" {
		t.Fatalf("message not forwarded: %v", turns.texts)
	}
}

func TestSendMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		persisted bool
	}{
		{"user write failed", turn.ErrUserPersistFailed, http.StatusServiceUnavailable, false},
		{"empty", turn.ErrEmptyMessage, http.StatusBadRequest, false},
		{"crisis blocked", turn.ErrCrisisCheckBlocked, http.StatusServiceUnavailable, false},
		{"assistant write failed", turn.ErrAssistantPersistFailed, http.StatusOK, false},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			turns := newFakeTurns()
			turns.result = turn.Result{Text: turn.RetryText}
			turns.err = tc.err
			r := setupRouter(turns)
			postJSON(r, "/users/u1/session", `{}`)

			resp := postJSON(r, "/users/u1/messages", `{"message":"hi"}`)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			var body turnResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode err: %v", err)
			}
			if body.Reply == "" || body.Persisted != tc.persisted {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestSendMessageWithoutSession(t *testing.T) {
	r := setupRouter(newFakeTurns())

	resp := postJSON(r, "/users/u9/messages", `{"message":"hi"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "No active conversation") {
		t.Fatalf("expected no-session text, got %s", resp.Body.String())
	}
}

func TestSendMessageInvalidBody(t *testing.T) {
	r := setupRouter(newFakeTurns())
	resp := postJSON(r, "/users/u1/messages", `not json`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageRejectsOversizedBody(t *testing.T) {
	turns := newFakeTurns()
	r := setupRouter(turns)
	postJSON(r, "/users/u1/session", `{}`)

	body := `{"message":"` + strings.Repeat("a", 2<<20) + `"}`
	for _, path := range []string{"/users/u1/messages", "/users/u1/messages/stream"} {
		resp := postJSON(r, path, body)
		if resp.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("%s: expected 413, got %d", path, resp.Code)
		}
	}
	if len(turns.texts) != 0 {
		t.Fatalf("expected no turns to run, got %d", len(turns.texts))
	}
}

func TestHistory(t *testing.T) {
	r := setupRouter(newFakeTurns())

	req := httptest.NewRequest(http.MethodGet, "/users/nobody/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	postJSON(r, "/users/u1/session", `{}`)
	req = httptest.NewRequest(http.MethodGet, "/users/u1/history", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"chatHistory":[]`) {
		t.Fatalf("unexpected history body: %s", resp.Body.String())
	}
}

func TestWebSocketTurn(t *testing.T) {
	turns := newFakeTurns()
	turns.result = turn.Result{TurnID: "t1", Text: "hello there", Risk: chat.RiskNone}
	server := httptest.NewServer(setupRouter(turns))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	var connected outgoingMessage
	if err := conn.ReadJSON(&connected); err != nil || connected.Type != "connected" {
		t.Fatalf("expected connected frame, got %+v err=%v", connected, err)
	}

	if err := conn.WriteJSON(map[string]any{"type": "message", "data": map[string]string{"text": "hi"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	var reply struct {
		Type string       `json:"type"`
		Data turnResponse `json:"data"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read err: %v", err)
	}
	if reply.Type != "reply" || reply.Data.Reply != "hello there" {
		t.Fatalf("unexpected reply frame: %+v", reply)
	}

	if err := conn.WriteJSON(map[string]any{"type": "audio"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	var unsupported outgoingMessage
	if err := conn.ReadJSON(&unsupported); err != nil || unsupported.Type != "error" {
		t.Fatalf("expected error frame, got %+v err=%v", unsupported, err)
	}
}
