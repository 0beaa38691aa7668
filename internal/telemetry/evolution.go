package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cipherhub/cipher-core/internal/metrics"
)

const (
	// MaxTier bounds the orchestrator's autonomy ladder
	MaxTier = 5

	// DefaultMinRuns is the experiment window when none is given
	DefaultMinRuns = 12

	// promoteDeltaQuality is the minimum avgQuality improvement over
	// baseline required to promote
	promoteDeltaQuality = 0.03

	// maxErrorRateIncrease is the error-rate regression tolerated on
	// promotion
	maxErrorRateIncrease = 0.05

	// maxLatencyIncreaseMs is the avgLatency regression tolerated on
	// promotion
	maxLatencyIncreaseMs = 500

	historyCap = 20
)

// Decision is the outcome of one experiment evaluation
type Decision string

const (
	DecisionPromote      Decision = "PROMOTE"
	DecisionRegress      Decision = "REGRESS"
	DecisionHold         Decision = "HOLD"
	DecisionInsufficient Decision = "INSUFFICIENT_DATA"
)

// Experiment is a supervised promotion attempt: a baseline snapshot and
// the run window needed before evaluation
type Experiment struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	StartedAt int64   `json:"startedAt"`
	Baseline  Metrics `json:"baselineMetrics"`
	MinRuns   int     `json:"minRuns"`
	// StartIndex is the run counter at experiment start; runs past it
	// belong to the experiment window
	StartIndex int64 `json:"startIndex"`
}

// Promotion is one historical tier increase
type Promotion struct {
	Tier         int     `json:"tier"`
	Label        string  `json:"label"`
	DeltaQuality float64 `json:"deltaQuality"`
	At           int64   `json:"at"`
}

// EvolutionState tracks the orchestrator's operating tier. The tier only
// ever increases, and only through PROMOTE.
type EvolutionState struct {
	Tier             int         `json:"tier"`
	ActiveExperiment *Experiment `json:"activeExperiment,omitempty"`
	LastDecision     Decision    `json:"lastDecision,omitempty"`
	History          []Promotion `json:"history"`
}

func (s EvolutionState) clone() EvolutionState {
	out := s
	if s.ActiveExperiment != nil {
		exp := *s.ActiveExperiment
		out.ActiveExperiment = &exp
	}
	out.History = make([]Promotion, len(s.History))
	copy(out.History, s.History)
	return out
}

// EvaluationResult reports one EvaluateExperiment call
type EvaluationResult struct {
	Decision       Decision `json:"decision"`
	Reason         string   `json:"reason"`
	Runs           int      `json:"runs"`
	DeltaQuality   float64  `json:"deltaQuality"`
	DeltaLatencyMs float64  `json:"deltaLatencyMs"`
	DeltaErrorRate float64  `json:"deltaErrorRate"`
	Tier           int      `json:"tier"`
}

// Evolution returns a copy of the current evolution state
func (s *Store) Evolution() EvolutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evolution.clone()
}

// StartExperiment snapshots metrics over the most recent minRuns as
// baseline and opens the single active experiment. Starting while one is
// already open is rejected.
func (s *Store) StartExperiment(label string, minRuns int) (*Experiment, error) {
	if minRuns <= 0 {
		minRuns = DefaultMinRuns
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evolution.ActiveExperiment != nil {
		return nil, fmt.Errorf("experiment %s already active", s.evolution.ActiveExperiment.ID)
	}

	baselineWindow := s.runs
	if len(baselineWindow) > minRuns {
		baselineWindow = baselineWindow[len(baselineWindow)-minRuns:]
	}

	exp := &Experiment{
		ID:         uuid.NewString(),
		Label:      label,
		StartedAt:  time.Now().UnixMilli(),
		Baseline:   ComputeMetrics(baselineWindow),
		MinRuns:    minRuns,
		StartIndex: s.total,
	}
	s.evolution.ActiveExperiment = exp
	s.persistEvolution()

	out := *exp
	return &out, nil
}

// EvaluateExperiment recomputes metrics over the runs accumulated since
// the experiment started and decides PROMOTE, REGRESS or HOLD. Fewer
// than minRuns runs yields INSUFFICIENT_DATA with no decision. PROMOTE
// and REGRESS clear the experiment; HOLD leaves it open.
func (s *Store) EvaluateExperiment() (*EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := s.evolution.ActiveExperiment
	if exp == nil {
		return nil, fmt.Errorf("no active experiment")
	}

	since := int(s.total - exp.StartIndex)
	if since < exp.MinRuns {
		return &EvaluationResult{
			Decision: DecisionInsufficient,
			Reason:   fmt.Sprintf("need %d runs, have %d", exp.MinRuns, since),
			Runs:     since,
			Tier:     s.evolution.Tier,
		}, nil
	}

	// enough runs since start: the newest MinRuns all post-date it
	window := s.runs
	if len(window) > exp.MinRuns {
		window = window[len(window)-exp.MinRuns:]
	}
	current := ComputeMetrics(window)

	res := &EvaluationResult{
		Runs:           len(window),
		DeltaQuality:   current.AvgQuality - exp.Baseline.AvgQuality,
		DeltaLatencyMs: current.AvgLatencyMs - exp.Baseline.AvgLatencyMs,
		DeltaErrorRate: current.ErrorRate - exp.Baseline.ErrorRate,
	}

	switch {
	case res.DeltaQuality >= promoteDeltaQuality &&
		res.DeltaLatencyMs <= maxLatencyIncreaseMs &&
		res.DeltaErrorRate <= maxErrorRateIncrease:
		res.Decision = DecisionPromote
		res.Reason = "quality improved within latency and error bounds"
		if s.evolution.Tier < MaxTier {
			s.evolution.Tier++
		}
		s.evolution.History = append(s.evolution.History, Promotion{
			Tier:         s.evolution.Tier,
			Label:        exp.Label,
			DeltaQuality: res.DeltaQuality,
			At:           time.Now().UnixMilli(),
		})
		if len(s.evolution.History) > historyCap {
			s.evolution.History = s.evolution.History[len(s.evolution.History)-historyCap:]
		}
		s.evolution.ActiveExperiment = nil

	case res.DeltaQuality < 0 && res.DeltaErrorRate > 0:
		res.Decision = DecisionRegress
		res.Reason = "quality dropped and error rate worsened"
		s.evolution.ActiveExperiment = nil

	default:
		res.Decision = DecisionHold
		res.Reason = "no clear signal, keep collecting runs"
	}

	s.evolution.LastDecision = res.Decision
	res.Tier = s.evolution.Tier
	metrics.EvolutionTier.Set(float64(s.evolution.Tier))
	s.persistEvolution()

	return res, nil
}
