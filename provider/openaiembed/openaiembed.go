// Package openaiembed implements oni.EmbeddingProvider on the OpenAI
// embeddings API.
package openaiembed

import (
	"context"
	"fmt"

	oni "github.com/onios/oni"
	openai "github.com/sashabaranov/go-openai"
)

// Default model and its vector size.
const (
	DefaultModel      = openai.SmallEmbedding3
	defaultDimensions = 1536
)

// Provider calls the OpenAI embeddings endpoint. A nil *Provider is a valid
// "no embedding service configured" value: Embed returns
// oni.ErrEmbeddingUnavailable.
type Provider struct {
	client     *openai.Client
	apiKey     string
	model      openai.EmbeddingModel
	dimensions int
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the embedding model. Dimensions must match the model's
// output size.
func WithModel(model openai.EmbeddingModel, dimensions int) Option {
	return func(p *Provider) {
		p.model = model
		p.dimensions = dimensions
	}
}

// WithBaseURL points the client at an alternate API base.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		cfg := openai.DefaultConfig(p.apiKey)
		cfg.BaseURL = baseURL
		p.client = openai.NewClientWithConfig(cfg)
	}
}

// New creates an embedding provider. An empty apiKey yields a nil provider,
// which signals unavailability rather than failing at call time with an
// opaque auth error.
func New(apiKey string, opts ...Option) *Provider {
	if apiKey == "" {
		return nil
	}
	p := &Provider{
		client:     openai.NewClient(apiKey),
		apiKey:     apiKey,
		model:      DefaultModel,
		dimensions: defaultDimensions,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return "openai-embeddings" }

// Dimensions returns the vector length of the configured model.
func (p *Provider) Dimensions() int {
	if p == nil {
		return 0
	}
	return p.dimensions
}

// Embed returns one vector per input text, in input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p == nil {
		return nil, oni.ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, &oni.ErrProvider{Provider: p.Name(), Message: fmt.Sprintf("create embeddings: %v", err)}
	}
	if len(resp.Data) != len(texts) {
		return nil, &oni.ErrProvider{Provider: p.Name(), Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Compile-time interface check.
var _ oni.EmbeddingProvider = (*Provider)(nil)
