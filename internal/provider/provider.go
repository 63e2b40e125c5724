// Package provider resolves a model descriptor plus a per-request config
// into a client bound to one upstream LLM service. Credential lookup and
// provider construction are driven by a declarative table rather than
// per-provider branching.
package provider

import (
	"context"
	"encoding/json"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
)

// Request is a single schema-constrained generation call.
type Request struct {
	Model    string
	System   string
	Messages []domain.Message
	Schema   json.RawMessage
	Params   domain.GenerationParams
}

// Client is a capability object bound to one provider, model and base URL.
// The orchestrator uses it exactly once per request. Stream emits the raw
// text deltas of the JSON output document; the error channel carries at most
// one error and both channels close when the stream ends.
type Client interface {
	ProviderID() string
	Stream(ctx context.Context, req Request) (<-chan string, <-chan error)
}
