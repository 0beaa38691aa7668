package memory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayReducesUnlockedTowardZero(t *testing.T) {
	store := newTestStore()
	engine := NewDecayEngine(store, slog.Default())
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fading fact", Strength: 3})
	require.NoError(t, err)
	_, err = store.Bump(ctx, "jim", n.ID, 0) // normalize persisted state
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := engine.Decay(ctx, "jim")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Decayed)
		assert.Equal(t, 0, res.Skipped)
	}

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, 0.0, nodes[0].Strength, "strength floors at zero")
	assert.Equal(t, 0, nodes[0].ReinforcementCount)
	assert.Equal(t, ImportanceLow, nodes[0].Importance)
}

func TestDecaySkipsLockedNodes(t *testing.T) {
	store := newTestStore()
	engine := NewDecayEngine(store, slog.Default())
	ctx := context.Background()

	locked, err := store.Upsert(ctx, "jim", Node{
		Content:    "my name is jim",
		Type:       TypeIdentity,
		Importance: ImportanceCore,
		Strength:   5,
		Locked:     true,
	})
	require.NoError(t, err)

	res, err := engine.Decay(ctx, "jim")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Decayed)
	assert.Equal(t, 1, res.Skipped)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, locked.Strength, nodes[0].Strength)
	assert.Equal(t, ImportanceCore, nodes[0].Importance)
	assert.Equal(t, ImportanceCore.Rank(), nodes[0].ImportanceRank)
}

func TestDecayRecomputesImportance(t *testing.T) {
	store := newTestStore()
	engine := NewDecayEngine(store, slog.Default())
	ctx := context.Background()

	// strength 10 = high; one decay pass drops it below the threshold
	_, err := store.Upsert(ctx, "jim", Node{
		Content:    "was important",
		Importance: ImportanceHigh,
		Strength:   PromotionThreshold,
	})
	require.NoError(t, err)

	_, err = engine.Decay(ctx, "jim")
	require.NoError(t, err)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, ImportanceMedium, nodes[0].Importance)
}

func TestDecayOnEmptyUser(t *testing.T) {
	store := newTestStore()
	engine := NewDecayEngine(store, slog.Default())

	res, err := engine.Decay(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, DecayResult{}, res)
}
