package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oni "github.com/onios/oni"
)

const shutdownTimeout = 5 * time.Second

type turnRequest struct {
	ConversationID string               `json:"conversation_id"`
	Message        string               `json:"message"`
	Tools          []oni.ToolDefinition `json:"tools"`
	Environment    string               `json:"environment"`
}

type continueRequest struct {
	ConversationID string               `json:"conversation_id"`
	Results        []oni.ToolResult     `json:"results"`
	Tools          []oni.ToolDefinition `json:"tools"`
	Environment    string               `json:"environment"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ConversationID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("conversation_id and message are required"))
		return
	}

	s.streamTurn(w, r, func(ch chan<- oni.Event) (oni.TurnResult, error) {
		return s.engine.StartTurn(r.Context(), req.ConversationID, req.Message, req.Tools, req.Environment, ch)
	})
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ConversationID == "" || len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("conversation_id and results are required"))
		return
	}

	s.streamTurn(w, r, func(ch chan<- oni.Event) (oni.TurnResult, error) {
		return s.engine.ContinueTurn(r.Context(), req.ConversationID, req.Results, req.Tools, req.Environment, ch)
	})
}

// streamTurn runs one turn and relays its events to the client as SSE. The
// engine owns channel closure; the relay drains until then. A client
// disconnect cancels the request context, which aborts the upstream call.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, run func(chan<- oni.Event) (oni.TurnResult, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan oni.Event, 32)
	type turnDone struct {
		result oni.TurnResult
		err    error
	}
	doneCh := make(chan turnDone, 1)
	go func() {
		result, err := run(ch)
		doneCh <- turnDone{result, err}
	}()

	for ev := range ch {
		writeSSE(w, string(ev.Type), ev)
		flusher.Flush()
	}

	done := <-doneCh
	if done.err != nil {
		s.logger.Warn("turn stream ended with error", "error", done.err)
		return
	}

	// The terminal event already streamed; append the accumulated result so
	// non-incremental clients get the whole turn in one frame.
	writeSSE(w, "result", done.result)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
