package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	oni "github.com/onios/oni"
	"github.com/onios/oni/auth"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockEngine struct {
	events []oni.Event
	result oni.TurnResult
	err    error

	gotConversationID string
	gotMessage        string
	gotResults        []oni.ToolResult
}

func (m *mockEngine) StartTurn(_ context.Context, conversationID, userMessage string, _ []oni.ToolDefinition, _ string, ch chan<- oni.Event) (oni.TurnResult, error) {
	m.gotConversationID = conversationID
	m.gotMessage = userMessage
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return m.result, m.err
}

func (m *mockEngine) ContinueTurn(_ context.Context, conversationID string, results []oni.ToolResult, _ []oni.ToolDefinition, _ string, ch chan<- oni.Event) (oni.TurnResult, error) {
	m.gotConversationID = conversationID
	m.gotResults = results
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return m.result, m.err
}

type mockMemory struct {
	stored   []oni.Memory
	searched string
}

func (m *mockMemory) Store(_ context.Context, content, category string, _ []string, _ map[string]string) (oni.Memory, error) {
	mem := oni.Memory{ID: "mem-1", Content: content, Category: category}
	m.stored = append(m.stored, mem)
	return mem, nil
}

func (m *mockMemory) Search(_ context.Context, query string, _ int, _ string) ([]oni.ScoredMemory, error) {
	m.searched = query
	return []oni.ScoredMemory{{Memory: oni.Memory{ID: "mem-1", Content: "hit"}, Score: 0.9}}, nil
}

func (m *mockMemory) List(context.Context, string) ([]oni.Memory, error) { return m.stored, nil }
func (m *mockMemory) Delete(_ context.Context, id string) (bool, error) {
	return id == "mem-1", nil
}

type mockAuth struct {
	status auth.Status
}

func (m *mockAuth) BeginAuth(context.Context) (auth.BeginAuthResult, error) {
	return auth.BeginAuthResult{AuthorizationURL: "https://auth.example/authorize?x=1", State: "s"}, nil
}
func (m *mockAuth) CompleteAuth(context.Context, string) (oni.Account, error) {
	return oni.Account{Email: "a@example.com"}, nil
}
func (m *mockAuth) SetAPIKey(context.Context, string) error       { return nil }
func (m *mockAuth) Refresh(context.Context) (oni.Credential, error) { return oni.Credential{}, nil }
func (m *mockAuth) Logout(context.Context) error                  { return nil }
func (m *mockAuth) Status(context.Context) (auth.Status, error)   { return m.status, nil }

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func newTestServer(engine *mockEngine) (*Server, *mockMemory) {
	mem := &mockMemory{}
	return New(Deps{
		Engine: engine,
		Memory: mem,
		Auth:   &mockAuth{status: auth.Status{State: "authenticated"}},
	}), mem
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(&mockEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/oni/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestTurnStreamsSSE(t *testing.T) {
	engine := &mockEngine{
		events: []oni.Event{
			{Type: oni.EventTextDelta, Content: "hi"},
			{Type: oni.EventTurnDone, TurnID: "t-1", Done: true},
		},
		result: oni.TurnResult{TurnID: "t-1", Text: "hi", Done: true},
	}
	s, _ := newTestServer(engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"conversation_id":"c1","message":"hello"}`
	resp, err := http.Post(srv.URL+"/api/oni/turn", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST turn: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", got)
	}

	var eventNames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		}
	}

	want := []string{"text-delta", "turn-done", "result"}
	if len(eventNames) != len(want) {
		t.Fatalf("expected events %v, got %v", want, eventNames)
	}
	for i := range want {
		if eventNames[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], eventNames[i])
		}
	}

	if engine.gotConversationID != "c1" || engine.gotMessage != "hello" {
		t.Errorf("engine received %q/%q", engine.gotConversationID, engine.gotMessage)
	}
}

func TestTurnRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(&mockEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/oni/turn", "application/json", strings.NewReader(`{"message":"x"}`))
	if err != nil {
		t.Fatalf("POST turn: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestContinuePassesResults(t *testing.T) {
	engine := &mockEngine{
		events: []oni.Event{{Type: oni.EventTurnDone, Done: true}},
	}
	s, _ := newTestServer(engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"conversation_id":"c1","results":[{"call_id":"call_1","name":"f","arguments":"{}","result":"done"}]}`
	resp, err := http.Post(srv.URL+"/api/oni/turn/continue", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST continue: %v", err)
	}
	resp.Body.Close()

	if len(engine.gotResults) != 1 || engine.gotResults[0].CallID != "call_1" {
		t.Errorf("engine received results %+v", engine.gotResults)
	}
}

func TestMemoryStoreAndSearch(t *testing.T) {
	s, mem := newTestServer(&mockEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/oni/memories", "application/json",
		bytes.NewReader([]byte(`{"content":"likes jazz","category":"preference"}`)))
	if err != nil {
		t.Fatalf("POST memories: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if len(mem.stored) != 1 || mem.stored[0].Content != "likes jazz" {
		t.Errorf("unexpected stored memories: %+v", mem.stored)
	}

	resp, err = http.Post(srv.URL+"/api/oni/memories/search", "application/json",
		bytes.NewReader([]byte(`{"query":"music"}`)))
	if err != nil {
		t.Fatalf("POST search: %v", err)
	}
	defer resp.Body.Close()
	var hits []oni.ScoredMemory
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0.9 {
		t.Errorf("unexpected hits: %+v", hits)
	}
	if mem.searched != "music" {
		t.Errorf("expected search query forwarded, got %q", mem.searched)
	}
}

func TestMemoryDeleteNotFound(t *testing.T) {
	s, _ := newTestServer(&mockEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/oni/memories/nope", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAuthStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(&mockEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/oni/auth/status")
	if err != nil {
		t.Fatalf("GET auth status: %v", err)
	}
	defer resp.Body.Close()

	var st auth.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "authenticated" {
		t.Errorf("expected authenticated, got %q", st.State)
	}
}
