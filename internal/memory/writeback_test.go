package memory

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSimilar(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"My name is Jim", "my name is jim!", true},
		{"I love hiking", "The weather is nice", false},
		{"we're building the launch plan", "building the launch plan", true},
		{"call me Jim from now on", "Call me Jim, from now on.", true},
		{"", "anything", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsSimilar(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestHighSignalGate(t *testing.T) {
	// identity cue passes regardless of length
	assert.True(t, highSignal("call me Jim"))
	assert.True(t, highSignal("I prefer dark mode"))

	// short small talk is discarded
	assert.False(t, highSignal("hey"))
	assert.False(t, highSignal("how are you today"))

	// long text still needs a trigger phrase
	assert.False(t, highSignal(strings.Repeat("pleasant small talk ", 5)))
	assert.True(t, highSignal("remember that the deployment pipeline runs on the staging repo first"))
}

func TestWritebackCreatesLockedIdentityNode(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	res, err := classifier.Writeback(ctx, "jim", "Call me Jim from now on", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Wrote)
	assert.Equal(t, 0, res.Reinforced)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, TypeIdentity, nodes[0].Type)
	assert.Equal(t, ImportanceCore, nodes[0].Importance)
	assert.True(t, nodes[0].Locked)
	assert.Equal(t, "chat:user", nodes[0].Source)
}

func TestWritebackReinforcesSimilarNode(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	res, err := classifier.Writeback(ctx, "jim", "My name is Jim", "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Wrote)

	res, err = classifier.Writeback(ctx, "jim", "my name is jim!", "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Wrote)
	assert.Equal(t, 1, res.Reinforced)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, 2.0, nodes[0].Strength)
	assert.NotZero(t, nodes[0].LastReinforcedAt)
	assert.True(t, nodes[0].Locked, "lock survives reinforcement")
}

func TestWritebackDiscardsSmallTalk(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	res, err := classifier.Writeback(ctx, "jim", "nice weather today", "indeed it is")
	require.NoError(t, err)
	assert.Equal(t, WritebackResult{}, res)
	assert.Empty(t, store.Load(ctx, "jim", 10))
}

func TestWritebackAssistantSide(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	long := "We will ship the orchestrator behind a feature flag and keep the " +
		strings.Repeat("rollout gradual ", 60)
	res, err := classifier.Writeback(ctx, "jim", "", long)
	require.NoError(t, err)
	require.Equal(t, 1, res.Wrote)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, TypeDecision, nodes[0].Type)
	assert.Equal(t, ImportanceMedium, nodes[0].Importance)
	assert.Equal(t, "chat:assistant", nodes[0].Source)
	assert.LessOrEqual(t, len(nodes[0].Content), 800)
	assert.Contains(t, nodes[0].Tags, "assistant")
}

func TestHighSignalGateCountsRunes(t *testing.T) {
	// 21 runes but 45 bytes: still below the 40-character minimum
	short := "remember " + strings.Repeat("记", 12)
	assert.False(t, highSignal(short))

	long := "remember " + strings.Repeat("记", 40)
	assert.True(t, highSignal(long))
}

func TestWritebackTruncatesAssistantContentOnRuneBoundary(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	long := "we will remember this: " + strings.Repeat("é", 900)
	res, err := classifier.Writeback(ctx, "jim", "", long)
	require.NoError(t, err)
	require.Equal(t, 1, res.Wrote)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.True(t, utf8.ValidString(nodes[0].Content))
	assert.Equal(t, 800, utf8.RuneCountInString(nodes[0].Content))
}

func TestWritebackProjectNodeUnlockedHigh(t *testing.T) {
	store := newTestStore()
	classifier := NewClassifier(store, slog.Default())
	ctx := context.Background()

	res, err := classifier.Writeback(ctx, "jim",
		"we're building a personal assistant and the goal is a spring launch", "")
	require.NoError(t, err)
	require.Equal(t, 1, res.Wrote)

	nodes := store.Load(ctx, "jim", 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, TypeProject, nodes[0].Type)
	assert.Equal(t, ImportanceHigh, nodes[0].Importance)
	assert.False(t, nodes[0].Locked)
	assert.Contains(t, nodes[0].Tags, "launch")
}

func TestClassifyPatterns(t *testing.T) {
	cases := []struct {
		text string
		want NodeType
	}{
		{"call me Jim", TypeIdentity},
		{"I prefer short answers", TypePreference},
		{"my daughter starts school next week", TypeRelationship},
		{"we're building a memory engine", TypeProject},
		{"pricing tiers go live friday", TypeProject},
		{"remember the repo uses trunk-based development", TypeLesson},
		{"something happened today", TypeEvent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.text), tc.text)
	}
}
