package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cipherhub/cipher-core/internal/config"
	"github.com/cipherhub/cipher-core/internal/inference"
	"github.com/cipherhub/cipher-core/internal/memory"
	"github.com/cipherhub/cipher-core/internal/telemetry"
)

// Server exposes the assistant core over HTTP and WebSocket
type Server struct {
	cfg          *config.Config
	store        *memory.Store
	classifier   *memory.Classifier
	decayEngine  *memory.DecayEngine
	orchestrator *inference.Orchestrator
	telemetry    *telemetry.Store
	httpServer   *http.Server
	startTime    time.Time
	logger       *slog.Logger
}

// New creates a new HTTP server
func New(cfg *config.Config, store *memory.Store, classifier *memory.Classifier, decayEngine *memory.DecayEngine, orch *inference.Orchestrator, tel *telemetry.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		store:        store,
		classifier:   classifier,
		decayEngine:  decayEngine,
		orchestrator: orch,
		telemetry:    tel,
		startTime:    time.Now(),
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/chat", s.chatHandler)
	mux.HandleFunc("/ws/chat", s.wsChatHandler)
	mux.HandleFunc("/api/v1/memory/nodes", s.memoryNodesHandler)
	mux.HandleFunc("/api/v1/memory/nodes/", s.memoryNodeHandler)
	mux.HandleFunc("/api/v1/memory/decay", s.decayHandler)
	mux.HandleFunc("/api/v1/evolution", s.evolutionHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // provider calls and streams are slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ChatRequest is one conversational turn from a caller
type ChatRequest struct {
	UserID      string              `json:"userId"`
	Message     string              `json:"message"`
	History     []inference.Message `json:"history,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

// ChatResponse is the completed turn
type ChatResponse struct {
	RequestID  string                  `json:"requestId"`
	Reply      string                  `json:"reply"`
	Provider   string                  `json:"provider"`
	Model      string                  `json:"model"`
	Intent     string                  `json:"intent"`
	Attempts   []inference.Attempt     `json:"attempts"`
	Writeback  *memory.WritebackResult `json:"writeback,omitempty"`
	ContextLen int                     `json:"contextNodes"`
}

// chatHandler runs one full turn: prioritized memory context, provider
// orchestration, then writeback
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "userId and message required")
		return
	}

	res, contextLen, err := s.runTurn(r.Context(), &req, false, nil)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	wb := s.writeback(req.UserID, req.Message, res.Reply)

	writeJSON(w, http.StatusOK, ChatResponse{
		RequestID:  res.RequestID,
		Reply:      res.Reply,
		Provider:   res.Provider,
		Model:      res.Model,
		Intent:     string(res.Intent),
		Attempts:   res.Attempts,
		Writeback:  wb,
		ContextLen: contextLen,
	})
}

// runTurn builds the memory-guided system prompt and orchestrates
func (s *Server) runTurn(ctx context.Context, req *ChatRequest, stream bool, onToken inference.TokenFunc) (*inference.TurnResult, int, error) {
	nodes := s.store.Load(ctx, req.UserID, s.cfg.Memory.LoadLimit)
	top := memory.Prioritize(nodes, s.cfg.Memory.ContextLimit)

	res, err := s.orchestrator.Respond(ctx, &inference.TurnRequest{
		UserMessage:  req.Message,
		History:      req.History,
		SystemPrompt: memory.Influence(top),
		Temperature:  req.Temperature,
		Stream:       stream,
		OnToken:      onToken,
	})
	return res, len(top), err
}

// writeback absorbs the completed turn into memory. Failures are logged
// and never surface to the caller.
func (s *Server) writeback(userID, userText, assistantText string) *memory.WritebackResult {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wb, err := s.classifier.Writeback(ctx, userID, userText, assistantText)
	if err != nil {
		s.logger.Warn("writeback failed", "user", userID, "error", err)
		return nil
	}
	return &wb
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	var allFailed *inference.AllFailedError
	switch {
	case errors.Is(err, inference.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &allFailed):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    allFailed.Error(),
			"attempts": allFailed.Attempts,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// NodesResponse lists a user's memory nodes
type NodesResponse struct {
	UserID string        `json:"userId"`
	Nodes  []memory.Node `json:"nodes"`
}

// UpsertNodeRequest creates or replaces a node
type UpsertNodeRequest struct {
	UserID string      `json:"userId"`
	Node   memory.Node `json:"node"`
}

// memoryNodesHandler lists (GET) or upserts (POST) memory nodes
func (s *Server) memoryNodesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user parameter required")
			return
		}
		nodes := s.store.Load(r.Context(), userID, s.cfg.Memory.LoadLimit)
		writeJSON(w, http.StatusOK, NodesResponse{UserID: userID, Nodes: nodes})

	case http.MethodPost:
		var req UpsertNodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.UserID == "" || req.Node.Content == "" {
			writeError(w, http.StatusBadRequest, "userId and node.content required")
			return
		}
		node, err := s.store.Upsert(r.Context(), req.UserID, req.Node)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, node)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// PatchNodeRequest updates node fields or bumps strength. A non-zero
// bump takes precedence over field patches.
type PatchNodeRequest struct {
	UserID     string             `json:"userId"`
	Bump       float64            `json:"bump,omitempty"`
	Type       *memory.NodeType   `json:"type,omitempty"`
	Content    *string            `json:"content,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	Importance *memory.Importance `json:"importance,omitempty"`
	Strength   *float64           `json:"strength,omitempty"`
	Locked     *bool              `json:"locked,omitempty"`
	LockType   *string            `json:"lockType,omitempty"`
	LockReason *string            `json:"lockReason,omitempty"`
}

// memoryNodeHandler patches or bumps a single node
func (s *Server) memoryNodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/memory/nodes/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "node id required")
		return
	}

	var req PatchNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	var (
		node *memory.Node
		err  error
	)
	if req.Bump != 0 {
		node, err = s.store.Bump(r.Context(), req.UserID, id, req.Bump)
	} else {
		node, err = s.store.Patch(r.Context(), req.UserID, id, memory.NodePatch{
			Type:       req.Type,
			Content:    req.Content,
			Tags:       req.Tags,
			Importance: req.Importance,
			Strength:   req.Strength,
			Locked:     req.Locked,
			LockType:   req.LockType,
			LockReason: req.LockReason,
		})
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if node == nil {
		writeError(w, http.StatusServiceUnavailable, "memory backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// DecayRequest triggers a decay pass for one user or all known users
type DecayRequest struct {
	UserID string `json:"userId,omitempty"`
}

// decayHandler triggers maintenance decay out of schedule
func (s *Server) decayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DecayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	users := s.cfg.Memory.Users
	if req.UserID != "" {
		users = []string{req.UserID}
	}
	if len(users) == 0 {
		writeError(w, http.StatusBadRequest, "no users to decay")
		return
	}

	results := make(map[string]memory.DecayResult, len(users))
	for _, user := range users {
		res, err := s.decayEngine.Decay(r.Context(), user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		results[user] = res
	}
	writeJSON(w, http.StatusOK, results)
}

// EvolutionRequest drives the supervised promotion flow
type EvolutionRequest struct {
	Action  string `json:"action"`
	Label   string `json:"label,omitempty"`
	MinRuns int    `json:"minRuns,omitempty"`
}

// evolutionHandler exposes STATUS, START and EVALUATE actions on the
// evolution controller. Guarded by the admin key when one is set.
func (s *Server) evolutionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if key := s.cfg.Server.AdminKey; key != "" && r.Header.Get("X-Admin-Key") != key {
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	var req EvolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch strings.ToUpper(req.Action) {
	case "STATUS":
		writeJSON(w, http.StatusOK, s.telemetry.GetSnapshot())

	case "START":
		if req.Label == "" {
			writeError(w, http.StatusBadRequest, "label required")
			return
		}
		exp, err := s.telemetry.StartExperiment(req.Label, req.MinRuns)
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case "EVALUATE":
		res, err := s.telemetry.EvaluateExperiment()
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)

	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}
