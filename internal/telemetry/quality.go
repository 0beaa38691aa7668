package telemetry

import (
	"math"
	"strings"
)

// ScoreReply scores the mechanical usefulness of a reply on [0, 1].
// Lightweight, fast, deterministic; callers are free to record runs with
// an externally supplied quality signal instead.
func ScoreReply(reply, userMessage string) float64 {
	if reply == "" {
		return 0
	}

	score := 0.5
	n := len(reply)

	// length sanity
	if n > 40 {
		score += 0.1
	}
	if n > 120 {
		score += 0.1
	}

	// instruction-following hint: the reply picks up the opening word
	// of the user's message
	if fields := strings.Fields(userMessage); len(fields) > 0 {
		if strings.Contains(strings.ToLower(reply), strings.ToLower(fields[0])) {
			score += 0.05
		}
	}

	// tiny useless answers
	if n < 10 {
		score -= 0.2
	}
	// runaway essays
	if n > 2000 {
		score -= 0.1
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1000) / 1000
}
