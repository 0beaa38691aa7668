package inference

import (
	"context"
)

// Message is one turn of conversation history
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a generation request, shaped per provider by each
// client
type Request struct {
	SystemPrompt string
	History      []Message
	UserMessage  string
	Temperature  float64
}

// Reply represents a completed generation
type Reply struct {
	Text  string
	Model string
}

// TokenFunc receives incremental reply text as it arrives
type TokenFunc func(delta string)

// Client is the interface for generation providers. Configured reports
// whether credentials are present; unconfigured clients are excluded
// from the candidate order rather than attempted.
type Client interface {
	Name() string
	Model() string
	Configured() bool
	SupportsStreaming() bool
	Generate(ctx context.Context, req *Request) (*Reply, error)
	// GenerateStream forwards deltas to onToken as they arrive and
	// returns the full reply. Clients without true incremental delivery
	// fall back to Generate; the orchestrator pseudo-streams for them.
	GenerateStream(ctx context.Context, req *Request, onToken TokenFunc) (*Reply, error)
}
