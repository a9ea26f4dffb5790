package chatcompat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	oni "github.com/onios/oni"
)

func TestStreamTurnEndToEnd(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(buildSSE(
			`{"id":"turn-1","choices":[{"index":0,"delta":{"content":"hey"}}]}`,
			`{"id":"turn-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}}`,
			"[DONE]",
		)))
	}))
	defer srv.Close()

	p := New("gpt-test", srv.URL)
	cred := oni.Credential{Type: oni.CredentialAPIKey, Key: "sk-test"}

	ch := make(chan oni.Event, 16)
	var events []oni.Event
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			events = append(events, ev)
		}
	}()

	outcome, err := p.StreamTurn(context.Background(), cred, oni.TurnRequest{
		Messages: []oni.Message{oni.UserMessage("hi")},
	}, ch)
	wg.Wait()
	if err != nil {
		t.Fatalf("StreamTurn returned error: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if outcome.Text != "hey" {
		t.Errorf("expected text 'hey', got %q", outcome.Text)
	}
	if outcome.TurnID != "turn-1" {
		t.Errorf("expected turn ID 'turn-1', got %q", outcome.TurnID)
	}

	last := events[len(events)-1]
	if last.Type != oni.EventTurnDone {
		t.Errorf("expected terminal turn-done, got %q", last.Type)
	}
	if !last.Done {
		t.Error("expected Done on terminal event with no tool calls")
	}
	if last.Usage == nil || last.Usage.InputTokens != 2 {
		t.Errorf("unexpected terminal usage: %+v", last.Usage)
	}
}

func TestStreamTurnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New("gpt-test", srv.URL)
	ch := make(chan oni.Event, 16)

	_, err := p.StreamTurn(context.Background(), oni.Credential{Type: oni.CredentialAPIKey, Key: "k"}, oni.TurnRequest{}, ch)
	if err == nil {
		t.Fatal("expected error on 429")
	}
	var httpErr *oni.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *oni.ErrHTTP, got %T", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.Status)
	}

	var events []oni.Event
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Type != oni.EventError {
		t.Errorf("expected single error event, got %+v", events)
	}
}

