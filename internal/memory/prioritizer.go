package memory

import (
	"sort"
	"strings"
	"time"
)

const (
	lockBonus     = 1000.0
	strengthBoost = 5.0

	// recencyWindow is how recently a node must have been reinforced to
	// earn the freshness bonus
	recencyWindow = 60 * time.Minute
	recencyBonus  = 50.0
)

// importanceBonus maps the importance tier onto its score contribution
var importanceBonus = map[Importance]float64{
	ImportanceCore:   500,
	ImportanceHigh:   200,
	ImportanceMedium: 50,
	ImportanceLow:    0,
}

// Prioritize selects a bounded, ranked subset of nodes to inject as
// context for a turn. Pure and deterministic: equal scores keep input
// order. A locked low-importance node always outranks an unlocked core
// one.
func Prioritize(nodes []Node, limit int) []Node {
	return prioritizeAt(nodes, limit, nowMillis())
}

func prioritizeAt(nodes []Node, limit int, now int64) []Node {
	if len(nodes) == 0 {
		return []Node{}
	}

	type scoredNode struct {
		node  Node
		score float64
	}

	scored := make([]scoredNode, len(nodes))
	for i, n := range nodes {
		score := importanceBonus[n.Importance] + strengthBoost*n.Strength
		if n.Locked {
			score += lockBonus
		}
		if n.LastReinforcedAt > 0 && now-n.LastReinforcedAt <= recencyWindow.Milliseconds() {
			score += recencyBonus
		}
		scored[i] = scoredNode{node: n, score: score}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		// lock is absolute: no strength accumulation may crowd out a
		// locked identity fact
		if scored[i].node.Locked != scored[j].node.Locked {
			return scored[i].node.Locked
		}
		return scored[i].score > scored[j].score
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]Node, len(scored))
	for i, sn := range scored {
		out[i] = sn.node
	}
	return out
}

// Influence renders prioritized nodes into a guidance block for the
// system prompt. Identity and preference nodes shape behavior directly;
// locked nodes are flagged as critical context.
func Influence(nodes []Node) string {
	if len(nodes) == 0 {
		return ""
	}

	var lines []string
	for _, n := range nodes {
		content := strings.TrimSpace(n.Content)
		if content == "" {
			continue
		}

		switch {
		case n.Type == TypeIdentity:
			lines = append(lines, "Respect the user's identity preference: "+content)
		case n.Type == TypePreference:
			lines = append(lines, "Adapt to the user's preference: "+content)
		case n.Locked:
			lines = append(lines, "This is critical long-term context: "+content)
		default:
			lines = append(lines, "Keep awareness of: "+content)
		}
	}

	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("USER CONTEXT GUIDANCE:\n")
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\nUse this information naturally. Do not mention memory unless asked.")
	return b.String()
}
