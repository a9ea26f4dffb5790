package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	oni "github.com/onios/oni"
)

// Provider implements oni.Provider over the responses API wire style.
type Provider struct {
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// WithName overrides the provider name used in errors and logs.
func WithName(name string) Option { return func(p *Provider) { p.name = name } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(p *Provider) { p.logger = l } }

// New creates a responses API adapter. The /responses path is appended to
// baseURL automatically.
func New(model, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "responses",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the adapter name.
func (p *Provider) Name() string { return p.name }

// StreamTurn sends one streaming responses request and forwards normalized
// events into ch. The channel is closed exactly once, after the terminal
// event, on every path.
func (p *Provider) StreamTurn(ctx context.Context, cred oni.Credential, req oni.TurnRequest, ch chan<- oni.Event) (oni.TurnOutcome, error) {
	body := BuildBody(req, p.model)
	body.Stream = true

	resp, err := p.sendHTTP(ctx, cred, body)
	if err != nil {
		return p.fail(ch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.fail(ch, p.httpErr(resp))
	}

	outcome, err := StreamSSE(ctx, resp.Body, ch)
	if err != nil {
		return p.fail(ch, err)
	}

	select {
	case ch <- oni.Event{Type: oni.EventTurnDone, TurnID: outcome.TurnID, Usage: &outcome.Usage, Done: len(outcome.ToolCalls) == 0}:
	case <-ctx.Done():
	}
	close(ch)
	return outcome, nil
}

func (p *Provider) sendHTTP(ctx context.Context, cred oni.Credential, body Request) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &oni.ErrProvider{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &oni.ErrProvider{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token := cred.Bearer(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return p.client.Do(httpReq)
}

// fail emits the terminal error event and closes the channel.
func (p *Provider) fail(ch chan<- oni.Event, err error) (oni.TurnOutcome, error) {
	if p.logger != nil {
		p.logger.Warn("stream turn failed", "provider", p.name, "error", err)
	}
	ch <- oni.Event{Type: oni.EventError, Content: err.Error()}
	close(ch)
	return oni.TurnOutcome{}, err
}

// httpErr reads the response body and returns an ErrHTTP.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &oni.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
}

// Compile-time interface check.
var _ oni.Provider = (*Provider)(nil)
