package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cipherhub/cipher-core/internal/metrics"
	"github.com/cipherhub/cipher-core/internal/telemetry"
)

// pseudoStreamChunkSize is the slice width for synthesized streams
const pseudoStreamChunkSize = 48

// ErrNoProviders is returned when no configured provider matches the
// candidate order
var ErrNoProviders = errors.New("no providers configured")

// AllFailedError is returned when every candidate provider was tried
// and none produced a usable reply
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all %d providers failed", len(e.Attempts))
}

// TurnRequest is one conversational turn to orchestrate
type TurnRequest struct {
	RequestID    string
	UserMessage  string
	History      []Message
	SystemPrompt string
	Temperature  float64
	Stream       bool
	OnToken      TokenFunc
}

// Attempt records one provider try within a turn
type Attempt struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latencyMs"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// TurnResult is the outcome of a successful orchestration
type TurnResult struct {
	RequestID    string    `json:"requestId"`
	Reply        string    `json:"reply"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Intent       Intent    `json:"intent"`
	Streamed     bool      `json:"streamed"`
	PseudoStream bool      `json:"pseudoStream"`
	Attempts     []Attempt `json:"attempts"`
}

// Orchestrator tries providers in intent order until one returns a
// non-empty reply. Attempts are sequential so no provider beyond the
// first success is billed. Every attempt is reported to telemetry
// best-effort.
type Orchestrator struct {
	clients   map[string]Client
	telemetry *telemetry.Store
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator over a set of provider clients
func NewOrchestrator(clients []Client, tel *telemetry.Store, logger *slog.Logger) *Orchestrator {
	byName := make(map[string]Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Orchestrator{
		clients:   byName,
		telemetry: tel,
		logger:    logger,
	}
}

// candidates resolves the intent order to configured clients, applying
// streaming promotion when requested
func (o *Orchestrator) candidates(intent Intent, stream bool) []Client {
	var out []Client
	for _, name := range ProviderOrder(intent) {
		c, ok := o.clients[name]
		if !ok || !c.Configured() {
			continue
		}
		out = append(out, c)
	}
	if stream {
		out = promoteStreaming(out)
	}
	return out
}

// Respond runs one turn. On success it returns the reply and the full
// attempt trail; on total failure it returns *AllFailedError, or
// ErrNoProviders when nothing is configured.
func (o *Orchestrator) Respond(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	intent := ClassifyIntent(req.UserMessage)
	clients := o.candidates(intent, req.Stream)
	if len(clients) == 0 {
		o.logger.Warn("no configured providers", "requestId", requestID, "intent", intent)
		return nil, ErrNoProviders
	}

	order := make([]string, len(clients))
	for i, c := range clients {
		order[i] = c.Name()
	}
	o.logger.Info("orchestrating turn",
		"requestId", requestID,
		"intent", intent,
		"order", order,
		"stream", req.Stream)

	genReq := &Request{
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		UserMessage:  req.UserMessage,
		Temperature:  req.Temperature,
	}

	var attempts []Attempt
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		streamed := req.Stream && client.SupportsStreaming()
		pseudo := req.Stream && !client.SupportsStreaming()

		start := time.Now()
		reply, err := o.generate(ctx, client, genReq, streamed, req.OnToken)
		latency := time.Since(start)

		if err == nil && (reply == nil || reply.Text == "") {
			err = errors.New("empty reply")
		}

		attempt := Attempt{
			Provider:  client.Name(),
			Model:     client.Model(),
			LatencyMs: latency.Milliseconds(),
			Success:   err == nil,
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		attempts = append(attempts, attempt)

		metrics.ProviderLatency.WithLabelValues(client.Name()).Observe(latency.Seconds())

		if err != nil {
			metrics.ProviderAttempts.WithLabelValues(client.Name(), "failure").Inc()
			o.recordAttempt(requestID, intent, order, attempt, "", req.UserMessage, streamed, pseudo)
			o.logger.Warn("provider attempt failed",
				"requestId", requestID,
				"provider", client.Name(),
				"error", err)
			continue
		}

		metrics.ProviderAttempts.WithLabelValues(client.Name(), "success").Inc()

		if pseudo {
			o.pseudoStream(reply.Text, req.OnToken)
		}

		o.recordAttempt(requestID, intent, order, attempt, reply.Text, req.UserMessage, streamed, pseudo)
		o.logger.Info("turn complete",
			"requestId", requestID,
			"provider", client.Name(),
			"model", reply.Model,
			"latencyMs", attempt.LatencyMs,
			"replyLength", len(reply.Text))

		return &TurnResult{
			RequestID:    requestID,
			Reply:        reply.Text,
			Provider:     client.Name(),
			Model:        reply.Model,
			Intent:       intent,
			Streamed:     streamed,
			PseudoStream: pseudo,
			Attempts:     attempts,
		}, nil
	}

	return nil, &AllFailedError{Attempts: attempts}
}

// generate dispatches to the streaming or complete path. The token
// callback is shielded so a panicking caller never aborts the read.
func (o *Orchestrator) generate(ctx context.Context, client Client, req *Request, streamed bool, onToken TokenFunc) (*Reply, error) {
	if streamed {
		return client.GenerateStream(ctx, req, o.safeToken(onToken))
	}
	return client.Generate(ctx, req)
}

// safeToken wraps a caller callback so panics are swallowed
func (o *Orchestrator) safeToken(onToken TokenFunc) TokenFunc {
	if onToken == nil {
		return nil
	}
	return func(delta string) {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn("token callback panicked", "panic", r)
			}
		}()
		onToken(delta)
	}
}

// pseudoStream slices a completed reply into fixed-size chunks so
// callers see the same live contract from non-streaming providers
func (o *Orchestrator) pseudoStream(text string, onToken TokenFunc) {
	if onToken == nil {
		return
	}
	emit := o.safeToken(onToken)
	runes := []rune(text)
	for i := 0; i < len(runes); i += pseudoStreamChunkSize {
		end := i + pseudoStreamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		emit(string(runes[i:end]))
	}
}

// recordAttempt reports one attempt to telemetry, best-effort
func (o *Orchestrator) recordAttempt(requestID string, intent Intent, order []string, attempt Attempt, reply, userMessage string, streamed, pseudo bool) {
	if o.telemetry == nil {
		return
	}
	o.telemetry.Record(telemetry.Run{
		RequestID:     requestID,
		Intent:        string(intent),
		ProviderOrder: order,
		Provider:      attempt.Provider,
		Model:         attempt.Model,
		LatencyMs:     attempt.LatencyMs,
		Success:       attempt.Success,
		ReplyLength:   len(reply),
		Streamed:      streamed,
		PseudoStream:  pseudo,
		Quality:       telemetry.ScoreReply(reply, userMessage),
		Error:         attempt.Error,
	})
}
