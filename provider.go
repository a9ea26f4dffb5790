package oni

import "context"

// Provider is a streaming protocol adapter for one upstream wire style.
// StreamTurn sends the request, forwards normalized events into ch as they
// arrive, and returns the accumulated outcome. Implementations close ch
// exactly once, after the terminal event. The two wire styles (turn-based
// and call-id-keyed stateful) differ only in request construction; both
// emit the same event vocabulary.
type Provider interface {
	StreamTurn(ctx context.Context, cred Credential, req TurnRequest, ch chan<- Event) (TurnOutcome, error)
	Name() string
}

// EmbeddingProvider abstracts text embedding. Embed returns one fixed-length
// vector per input text, or ErrEmbeddingUnavailable when no embedding
// service is configured.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
