package memory

import (
	"context"
	"log/slog"

	"github.com/cipherhub/cipher-core/internal/metrics"
)

// decayAmount is subtracted from strength and reinforcementCount on
// every decay pass, floored at zero
const decayAmount = 1.0

// DecayResult reports one decay pass over a user's nodes
type DecayResult struct {
	Decayed int `json:"decayed"`
	Skipped int `json:"skipped"`
}

// DecayEngine ages node scores over time. It is driven by an external
// scheduler; strength only ever increases through Bump.
type DecayEngine struct {
	store  *Store
	logger *slog.Logger
}

// NewDecayEngine creates a decay engine over a store
func NewDecayEngine(store *Store, logger *slog.Logger) *DecayEngine {
	return &DecayEngine{store: store, logger: logger}
}

// Decay reduces strength and reinforcementCount of every unlocked node
// by a fixed amount and recomputes importance from the new strength.
// Locked nodes are skipped and counted separately.
func (e *DecayEngine) Decay(ctx context.Context, userID string) (DecayResult, error) {
	lock := e.store.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var res DecayResult

	nodes, err := e.store.backend.List(ctx, userID)
	if err != nil {
		e.logger.Warn("decay degraded to no-op", "user", userID, "error", err)
		return res, nil
	}

	now := nowMillis()
	for _, n := range nodes {
		n.normalize()

		if n.Locked {
			res.Skipped++
			continue
		}

		n.setStrength(n.Strength - decayAmount)
		if n.ReinforcementCount > 0 {
			n.ReinforcementCount--
		}
		n.setImportance(ImportanceForStrength(n.Strength))
		n.UpdatedAt = now

		if err := e.store.backend.Put(ctx, userID, n); err != nil {
			e.logger.Warn("decay write failed", "user", userID, "node", n.ID, "error", err)
			continue
		}
		res.Decayed++
	}

	metrics.NodesDecayed.Add(float64(res.Decayed))
	e.logger.Info("memory decay pass", "user", userID, "decayed", res.Decayed, "skipped", res.Skipped)
	return res, nil
}
