package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Backend persists raw node records. Implementations must be safe for
// concurrent use; the Store serializes per-user mutation on top.
type Backend interface {
	// List returns every node for a user, in no particular order
	List(ctx context.Context, userID string) ([]Node, error)
	// Get returns a node by id, or nil when absent
	Get(ctx context.Context, userID, id string) (*Node, error)
	// Put creates or replaces a node
	Put(ctx context.Context, userID string, n Node) error
}

func nodeKey(userID string) string {
	return "memory:" + userID + ":nodes"
}

// RedisBackend stores each user's nodes in a redis hash keyed by node id
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend wraps an existing redis client
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) List(ctx context.Context, userID string) ([]Node, error) {
	fields, err := b.rdb.HGetAll(ctx, nodeKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	nodes := make([]Node, 0, len(fields))
	for id, raw := range fields {
		var n Node
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			// skip corrupt records rather than fail the whole load
			continue
		}
		if n.ID == "" {
			n.ID = id
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (b *RedisBackend) Get(ctx context.Context, userID, id string) (*Node, error) {
	raw, err := b.rdb.HGet(ctx, nodeKey(userID), id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}

	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("corrupt node record %s: %w", id, err)
	}
	return &n, nil
}

func (b *RedisBackend) Put(ctx context.Context, userID string, n Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}
	if err := b.rdb.HSet(ctx, nodeKey(userID), n.ID, data).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// MemoryBackend is a process-local Backend used when redis is disabled
// and in tests
type MemoryBackend struct {
	mu    sync.RWMutex
	users map[string]map[string]Node
}

// NewMemoryBackend creates an empty in-process backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]map[string]Node)}
}

func (b *MemoryBackend) List(_ context.Context, userID string) ([]Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	nodes := make([]Node, 0, len(b.users[userID]))
	for _, n := range b.users[userID] {
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (b *MemoryBackend) Get(_ context.Context, userID, id string) (*Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, ok := b.users[userID][id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (b *MemoryBackend) Put(_ context.Context, userID string, n Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.users[userID] == nil {
		b.users[userID] = make(map[string]Node)
	}
	b.users[userID][n.ID] = n
	return nil
}
