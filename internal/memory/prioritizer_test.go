package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrioritizeLockedOutranksCore(t *testing.T) {
	lockedLow := Node{ID: "a", Importance: ImportanceLow, Locked: true}
	unlockedCore := Node{ID: "b", Importance: ImportanceCore, Strength: 90}

	out := Prioritize([]Node{unlockedCore, lockedLow}, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID, "locked low beats unlocked core")
}

func TestPrioritizeRecencyBonus(t *testing.T) {
	now := time.Now().UnixMilli()
	fresh := Node{ID: "fresh", Importance: ImportanceMedium, LastReinforcedAt: now - time.Minute.Milliseconds()}
	stale := Node{ID: "stale", Importance: ImportanceMedium, LastReinforcedAt: now - 2*time.Hour.Milliseconds()}

	out := prioritizeAt([]Node{stale, fresh}, 2, now)
	assert.Equal(t, "fresh", out[0].ID)
}

func TestPrioritizeStableAndIdempotent(t *testing.T) {
	nodes := []Node{
		{ID: "a", Importance: ImportanceMedium},
		{ID: "b", Importance: ImportanceMedium},
		{ID: "c", Importance: ImportanceMedium},
	}

	first := Prioritize(nodes, 3)
	second := Prioritize(first, 3)

	require.Len(t, first, 3)
	assert.Equal(t, "a", first[0].ID, "ties keep input order")
	assert.Equal(t, first, second, "idempotent on its own output")
}

func TestPrioritizeTruncates(t *testing.T) {
	nodes := []Node{
		{ID: "a", Importance: ImportanceCore},
		{ID: "b", Importance: ImportanceHigh},
		{ID: "c", Importance: ImportanceLow},
	}
	out := Prioritize(nodes, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestPrioritizeDoesNotMutateInput(t *testing.T) {
	nodes := []Node{
		{ID: "a", Importance: ImportanceLow},
		{ID: "b", Importance: ImportanceCore},
	}
	Prioritize(nodes, 2)
	assert.Equal(t, "a", nodes[0].ID)
}

func TestPrioritizeEmpty(t *testing.T) {
	assert.Empty(t, Prioritize(nil, 5))
}

func TestInfluenceRendersGuidance(t *testing.T) {
	nodes := []Node{
		{Type: TypeIdentity, Content: "call me Jim"},
		{Type: TypePreference, Content: "short answers"},
		{Type: TypeProject, Content: "shipping the memory engine", Locked: true},
	}
	out := Influence(nodes)
	assert.Contains(t, out, "identity preference: call me Jim")
	assert.Contains(t, out, "user's preference: short answers")
	assert.Contains(t, out, "critical long-term context: shipping the memory engine")
	assert.Empty(t, Influence(nil))
}
