package oni

import (
	"errors"
	"fmt"
)

// ErrNoCredential is returned when a turn is started with no usable
// credential configured. Fatal to the turn; the caller must authenticate.
var ErrNoCredential = errors.New("no credential available")

// ErrEmbeddingUnavailable signals that no embedding service is configured.
// Memory search degrades to token-overlap scoring.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// ErrHTTP is a non-success response from the upstream, carried with the
// provider's status and body. Never retried automatically within a turn.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrProvider wraps a provider-side failure (marshal, transport, decode).
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrRefreshFailed means an OAuth refresh was rejected. The credential is
// left unusable; the caller must re-authenticate. A stale token is never
// silently reused.
type ErrRefreshFailed struct {
	Cause error
}

func (e *ErrRefreshFailed) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *ErrRefreshFailed) Unwrap() error { return e.Cause }

// ErrAuthFlow covers failures in the PKCE authorization flow itself
// (state mismatch, missing code, exchange rejection).
type ErrAuthFlow struct {
	Message string
}

func (e *ErrAuthFlow) Error() string {
	return "auth flow: " + e.Message
}
