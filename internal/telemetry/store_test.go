package telemetry

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(capacity int) *Store {
	return NewStore(capacity, nil, slog.Default())
}

func TestRecordBoundedLog(t *testing.T) {
	store := newTestStore(5)

	for i := 0; i < 8; i++ {
		store.Record(Run{RequestID: fmt.Sprintf("req-%d", i), Success: true})
	}

	runs := store.Runs()
	require.Len(t, runs, 5)
	assert.Equal(t, "req-3", runs[0].RequestID, "oldest dropped past capacity")
	assert.Equal(t, "req-7", runs[4].RequestID)
}

func TestLastRuns(t *testing.T) {
	store := newTestStore(10)
	for i := 0; i < 6; i++ {
		store.Record(Run{RequestID: fmt.Sprintf("req-%d", i)})
	}

	last := store.LastRuns(3)
	require.Len(t, last, 3)
	assert.Equal(t, "req-3", last[0].RequestID)
	assert.Equal(t, "req-5", last[2].RequestID)

	assert.Len(t, store.LastRuns(100), 6)
}

func TestGetSnapshot(t *testing.T) {
	store := newTestStore(10)
	store.Record(Run{RequestID: "a", Success: true, Quality: 0.8, LatencyMs: 100})
	store.Record(Run{RequestID: "b", Success: false, Error: "boom", LatencyMs: 300})

	snap := store.GetSnapshot()
	assert.Equal(t, 2, snap.RunCount)
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, "b", snap.LastRun.RequestID)
	assert.Equal(t, 0.5, snap.Metrics.SuccessRate)
}

func TestComputeMetrics(t *testing.T) {
	runs := []Run{
		{Success: true, Quality: 0.8, LatencyMs: 100},
		{Success: true, Quality: 0.6, LatencyMs: 200},
		{Success: false, Quality: 0, LatencyMs: 300, Error: "timeout"},
		{Success: false, Quality: 0, LatencyMs: 400, Error: "empty reply"},
	}

	m := ComputeMetrics(runs)
	assert.Equal(t, 4, m.Count)
	assert.InDelta(t, 0.35, m.AvgQuality, 1e-9)
	assert.Equal(t, 0.5, m.SuccessRate)
	assert.Equal(t, 250.0, m.AvgLatencyMs)
	assert.Equal(t, 0.5, m.ErrorRate)
}

func TestComputeMetricsEmpty(t *testing.T) {
	assert.Equal(t, Metrics{}, ComputeMetrics(nil))
}

func TestScoreReply(t *testing.T) {
	assert.Equal(t, 0.0, ScoreReply("", "hello"))

	// short junk loses points
	assert.Less(t, ScoreReply("ok", "explain the plan"), 0.5)

	// a substantial reply echoing the opening word gains points
	long := "Explain is exactly what I will do: here is a thorough walkthrough " +
		"of the plan with the relevant steps in order and the reasoning behind each."
	assert.Greater(t, ScoreReply(long, "Explain the plan"), 0.7)

	// always bounded
	for _, reply := range []string{"x", long} {
		q := ScoreReply(reply, "anything")
		assert.GreaterOrEqual(t, q, 0.0)
		assert.LessOrEqual(t, q, 1.0)
	}
}
