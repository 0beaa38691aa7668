package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCapacity bounds the rolling run log
const DefaultCapacity = 200

const (
	runsKey      = "telemetry:runs"
	evolutionKey = "telemetry:evolution"
)

// Run records one orchestration attempt. Immutable once recorded.
type Run struct {
	RequestID     string   `json:"requestId"`
	Intent        string   `json:"intent"`
	ProviderOrder []string `json:"providerOrder"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	LatencyMs     int64    `json:"latencyMs"`
	Success       bool     `json:"success"`
	ReplyLength   int      `json:"replyLength"`
	Streamed      bool     `json:"streamed"`
	PseudoStream  bool     `json:"pseudoStream"`
	Quality       float64  `json:"quality"`
	Error         string   `json:"error,omitempty"`
	At            int64    `json:"at"`
}

// Store owns the bounded rolling run log and the evolution state. It is
// constructed and injected explicitly; recording is append-only and
// best-effort, and never fails the orchestration that produced the run.
// Redis persistence, when configured, is a best-effort mirror of the
// in-memory window.
type Store struct {
	mu        sync.RWMutex
	capacity  int
	runs      []Run
	total     int64 // monotonic count of runs ever recorded
	evolution EvolutionState
	rdb       *redis.Client
	logger    *slog.Logger
}

// NewStore creates a telemetry store. rdb may be nil, in which case the
// log lives only in memory.
func NewStore(capacity int, rdb *redis.Client, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: capacity,
		runs:     make([]Run, 0, capacity),
		rdb:      rdb,
		logger:   logger,
	}
	s.evolution.History = []Promotion{}
	s.restore()
	return s
}

// Record appends a run to the rolling log, dropping the oldest past
// capacity. Never returns an error.
func (s *Store) Record(run Run) {
	if run.At == 0 {
		run.At = time.Now().UnixMilli()
	}

	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.total++
	if len(s.runs) > s.capacity {
		s.runs = s.runs[len(s.runs)-s.capacity:]
	}
	s.mu.Unlock()

	s.persistRun(run)
}

// Runs returns a copy of the log, oldest first
func (s *Store) Runs() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Run, len(s.runs))
	copy(out, s.runs)
	return out
}

// LastRuns returns up to n most recent runs, oldest first
func (s *Store) LastRuns(n int) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.runs) {
		n = len(s.runs)
	}
	out := make([]Run, n)
	copy(out, s.runs[len(s.runs)-n:])
	return out
}

// Snapshot is the operator-facing view of the telemetry store
type Snapshot struct {
	UpdatedAt int64          `json:"updatedAt"`
	RunCount  int            `json:"runs"`
	LastRun   *Run           `json:"lastRun,omitempty"`
	Metrics   Metrics        `json:"metrics"`
	Evolution EvolutionState `json:"evolution"`
}

// GetSnapshot returns the current telemetry view
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RunCount:  len(s.runs),
		Metrics:   ComputeMetrics(s.runs),
		Evolution: s.evolution.clone(),
	}
	if len(s.runs) > 0 {
		last := s.runs[len(s.runs)-1]
		snap.LastRun = &last
		snap.UpdatedAt = last.At
	}
	return snap
}

// persistRun mirrors a run into redis, best-effort
func (s *Store) persistRun(run Run) {
	if s.rdb == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(run)
	if err != nil {
		return
	}
	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, runsKey, data)
	pipe.LTrim(ctx, runsKey, 0, int64(s.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Debug("telemetry persist skipped", "error", err)
	}
}

// persistEvolution mirrors the evolution state into redis, best-effort.
// Callers hold s.mu.
func (s *Store) persistEvolution() {
	if s.rdb == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(s.evolution)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, evolutionKey, data, 0).Err(); err != nil {
		s.logger.Debug("evolution persist skipped", "error", err)
	}
}

// restore reloads the run window and evolution state from redis
func (s *Store) restore() {
	if s.rdb == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if raw, err := s.rdb.Get(ctx, evolutionKey).Result(); err == nil {
		var state EvolutionState
		if json.Unmarshal([]byte(raw), &state) == nil {
			if state.History == nil {
				state.History = []Promotion{}
			}
			s.evolution = state
		}
	}

	items, err := s.rdb.LRange(ctx, runsKey, 0, int64(s.capacity-1)).Result()
	if err != nil {
		return
	}
	// list is newest-first; rebuild oldest-first
	for i := len(items) - 1; i >= 0; i-- {
		var run Run
		if json.Unmarshal([]byte(items[i]), &run) == nil {
			s.runs = append(s.runs, run)
		}
	}
	s.total = int64(len(s.runs))

	// run counters do not survive a restart; an experiment started in a
	// previous process begins its window afresh
	if exp := s.evolution.ActiveExperiment; exp != nil && exp.StartIndex > s.total {
		exp.StartIndex = s.total
	}
}
