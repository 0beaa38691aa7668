package memory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(NewMemoryBackend(), slog.Default())
}

func TestUpsertAssignsIDAndRank(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{
		Type:       TypeProject,
		Content:    "building the launch plan",
		Importance: ImportanceHigh,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, ImportanceHigh.Rank(), n.ImportanceRank)
	assert.NotZero(t, n.CreatedAt)
	assert.Equal(t, n.Strength, n.Weight)
}

func TestUpsertWithIDUpdatesInPlace(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "first"})
	require.NoError(t, err)

	n.Content = "second"
	updated, err := store.Upsert(ctx, "jim", n)
	require.NoError(t, err)
	assert.Equal(t, n.ID, updated.ID)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, "second", nodes[0].Content)
}

func TestPatchImportanceRecomputesRank(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fact", Importance: ImportanceLow})
	require.NoError(t, err)

	core := ImportanceCore
	patched, err := store.Patch(ctx, "jim", n.ID, NodePatch{Importance: &core})
	require.NoError(t, err)
	require.NotNil(t, patched)

	assert.Equal(t, ImportanceCore, patched.Importance)
	assert.Equal(t, ImportanceCore.Rank(), patched.ImportanceRank)
	assert.GreaterOrEqual(t, patched.UpdatedAt, n.UpdatedAt)
}

func TestPatchRejectsInvalidImportance(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fact"})
	require.NoError(t, err)

	bogus := Importance("galactic")
	_, err = store.Patch(ctx, "jim", n.ID, NodePatch{Importance: &bogus})
	assert.Error(t, err)
}

func TestBumpMonotonicStrengthAndImportance(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fact"})
	require.NoError(t, err)

	prevStrength := n.Strength
	prevRank := n.ImportanceRank
	for i := 0; i < 25; i++ {
		bumped, err := store.Bump(ctx, "jim", n.ID, 1)
		require.NoError(t, err)
		require.NotNil(t, bumped)

		assert.GreaterOrEqual(t, bumped.Strength, prevStrength)
		assert.GreaterOrEqual(t, bumped.ImportanceRank, prevRank)
		assert.Equal(t, bumped.Strength, bumped.Weight)
		prevStrength = bumped.Strength
		prevRank = bumped.ImportanceRank
	}

	final, err := store.Bump(ctx, "jim", n.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, ImportanceCore, final.Importance)
}

func TestBumpThresholds(t *testing.T) {
	cases := []struct {
		strength float64
		want     Importance
	}{
		{0, ImportanceLow},
		{PromotionThreshold/2 - 1, ImportanceLow},
		{PromotionThreshold / 2, ImportanceMedium},
		{PromotionThreshold, ImportanceHigh},
		{2 * PromotionThreshold, ImportanceCore},
		{MaxStrength, ImportanceCore},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ImportanceForStrength(tc.strength), "strength %f", tc.strength)
	}
}

func TestBumpClampsStrength(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fact"})
	require.NoError(t, err)

	bumped, err := store.Bump(ctx, "jim", n.ID, MaxStrength*2)
	require.NoError(t, err)
	assert.Equal(t, MaxStrength, bumped.Strength)

	bumped, err = store.Bump(ctx, "jim", n.ID, -MaxStrength*4)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bumped.Strength)
}

func TestBumpNegativeDoesNotCountReinforcement(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	n, err := store.Upsert(ctx, "jim", Node{Content: "fact"})
	require.NoError(t, err)

	bumped, err := store.Bump(ctx, "jim", n.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, bumped.ReinforcementCount)

	bumped, err = store.Bump(ctx, "jim", n.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, bumped.ReinforcementCount)
}

func TestLoadGravityOrder(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	weakLocked, err := store.Upsert(ctx, "jim", Node{
		Content: "locked but weak", Importance: ImportanceLow, Locked: true,
	})
	require.NoError(t, err)

	strongCore, err := store.Upsert(ctx, "jim", Node{
		Content: "core and strong", Importance: ImportanceCore, Strength: 500,
	})
	require.NoError(t, err)

	mediumNode, err := store.Upsert(ctx, "jim", Node{
		Content: "medium", Importance: ImportanceMedium, Strength: 3,
	})
	require.NoError(t, err)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 3)
	assert.Equal(t, weakLocked.ID, nodes[0].ID, "locked node sorts first")
	assert.Equal(t, strongCore.ID, nodes[1].ID)
	assert.Equal(t, mediumNode.ID, nodes[2].ID)
}

func TestLoadRespectsLimit(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Upsert(ctx, "jim", Node{Content: "fact"})
		require.NoError(t, err)
	}

	assert.Len(t, store.Load(ctx, "jim", 3), 3)
}

func TestLoadMissingUserIsEmpty(t *testing.T) {
	store := newTestStore()
	assert.Empty(t, store.Load(context.Background(), "nobody", 10))
}
