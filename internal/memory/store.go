package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cipherhub/cipher-core/internal/metrics"
)

// Store is the persisted ledger of scored memory fragments. All
// mutations for one user are serialized through a per-user mutex so
// writeback and decay cannot race on the same node. Backend failures
// degrade to empty or no-op results: a missing store disables memory
// features without breaking the conversation path.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store over the given backend
func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing writes for one user
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Load returns up to limit nodes ordered by gravity: locked first, then
// descending importance rank, strength and recency. The tie-break chain
// keeps identity-critical facts ahead of merely-frequent ones.
func (s *Store) Load(ctx context.Context, userID string, limit int) []Node {
	if limit <= 0 {
		limit = 60
	}

	nodes, err := s.backend.List(ctx, userID)
	if err != nil {
		s.logger.Warn("memory load degraded to empty", "user", userID, "error", err)
		return []Node{}
	}

	for i := range nodes {
		nodes[i].normalize()
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Locked != b.Locked {
			return a.Locked
		}
		if a.ImportanceRank != b.ImportanceRank {
			return a.ImportanceRank > b.ImportanceRank
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.UpdatedAt > b.UpdatedAt
	})

	if len(nodes) > limit {
		nodes = nodes[:limit]
	}

	metrics.MemoryOperations.WithLabelValues("load").Inc()
	return nodes
}

// Upsert creates a node when no id is supplied and replaces it in place
// otherwise. Returns the stored node.
func (s *Store) Upsert(ctx context.Context, userID string, n Node) (Node, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := nowMillis()
	if n.ID == "" {
		n.ID = uuid.NewString()
		n.CreatedAt = now
	} else if n.CreatedAt == 0 {
		if existing, err := s.backend.Get(ctx, userID, n.ID); err == nil && existing != nil {
			n.CreatedAt = existing.CreatedAt
		} else {
			n.CreatedAt = now
		}
	}
	n.UpdatedAt = now
	n.normalize()

	if err := s.backend.Put(ctx, userID, n); err != nil {
		s.logger.Warn("memory upsert degraded to no-op", "user", userID, "error", err)
		return n, nil
	}

	metrics.MemoryOperations.WithLabelValues("upsert").Inc()
	return n, nil
}

// Patch merges the given fields into a node and refreshes updatedAt.
// Patching importance recomputes the rank.
func (s *Store) Patch(ctx context.Context, userID, id string, patch NodePatch) (*Node, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	n, err := s.backend.Get(ctx, userID, id)
	if err != nil {
		s.logger.Warn("memory patch degraded to no-op", "user", userID, "node", id, "error", err)
		return nil, nil
	}
	if n == nil {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	n.normalize()
	patch.apply(n)
	n.UpdatedAt = nowMillis()

	if err := s.backend.Put(ctx, userID, *n); err != nil {
		s.logger.Warn("memory patch degraded to no-op", "user", userID, "node", id, "error", err)
		return nil, nil
	}

	metrics.MemoryOperations.WithLabelValues("patch").Inc()
	return n, nil
}

// Bump adds delta to a node's strength, clamped to [0, MaxStrength],
// and recomputes importance from the promotion thresholds. Importance
// never moves down under Bump; decay is the only path that demotes. A
// positive delta also increments reinforcementCount.
func (s *Store) Bump(ctx context.Context, userID, id string, delta float64) (*Node, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	n, err := s.backend.Get(ctx, userID, id)
	if err != nil {
		s.logger.Warn("memory bump degraded to no-op", "user", userID, "node", id, "error", err)
		return nil, nil
	}
	if n == nil {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	n.normalize()
	n.setStrength(n.Strength + delta)

	if next := ImportanceForStrength(n.Strength); next.Rank() > n.ImportanceRank {
		n.setImportance(next)
	}
	if delta > 0 {
		n.ReinforcementCount++
	}
	n.UpdatedAt = nowMillis()

	if err := s.backend.Put(ctx, userID, *n); err != nil {
		s.logger.Warn("memory bump degraded to no-op", "user", userID, "node", id, "error", err)
		return nil, nil
	}

	metrics.MemoryOperations.WithLabelValues("bump").Inc()
	return n, nil
}
