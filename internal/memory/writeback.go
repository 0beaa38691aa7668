package memory

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cipherhub/cipher-core/internal/metrics"
)

const (
	// minSignalLength gates non-identity text: anything shorter is
	// treated as small talk
	minSignalLength = 40

	// assistantContentCap truncates assistant-side writebacks
	assistantContentCap = 800

	// similarityOverlap is the token-overlap ratio over the smaller
	// token set above which two texts are considered the same fact
	similarityOverlap = 0.6
)

// identityCues short-circuit the length gate: explicit self-naming or a
// stated preference is always high-signal
var identityCues = []string{
	"my name is",
	"call me",
	"i prefer",
	"from now on",
}

// triggers is the fixed trigger vocabulary for longer text
var triggers = []string{
	"remember",
	"we will",
	"we're building",
	"i'm building",
	"the goal is",
	"launch",
	"pricing",
	"tier",
	"repo",
	"deploy",
	"roadmap",
	"deadline",
	"my daughter",
	"my son",
	"my partner",
	"my dad",
	"my mom",
	"orchestrator",
}

// WritebackResult reports one writeback pass
type WritebackResult struct {
	Wrote      int `json:"wrote"`
	Reinforced int `json:"reinforced"`
}

// Classifier decides, per turn, whether new text becomes a memory node
// and deduplicates against existing ones. Low-signal text is discarded;
// false negatives are preferred over flooding memory with small talk.
type Classifier struct {
	store  *Store
	logger *slog.Logger
}

// NewClassifier creates a writeback classifier over a store
func NewClassifier(store *Store, logger *slog.Logger) *Classifier {
	return &Classifier{store: store, logger: logger}
}

// Writeback inspects both sides of a completed turn and writes or
// reinforces nodes in the store.
func (c *Classifier) Writeback(ctx context.Context, userID, userText, assistantText string) (WritebackResult, error) {
	var res WritebackResult

	existing := c.store.Load(ctx, userID, 0)

	if highSignal(userText) {
		wrote, reinforced := c.absorb(ctx, userID, existing, userText, true)
		res.Wrote += wrote
		res.Reinforced += reinforced
	}

	if highSignal(assistantText) {
		content := assistantText
		if runes := []rune(content); len(runes) > assistantContentCap {
			content = string(runes[:assistantContentCap])
		}
		wrote, reinforced := c.absorb(ctx, userID, existing, content, false)
		res.Wrote += wrote
		res.Reinforced += reinforced
	}

	metrics.WritebackResults.WithLabelValues("wrote").Add(float64(res.Wrote))
	metrics.WritebackResults.WithLabelValues("reinforced").Add(float64(res.Reinforced))
	return res, nil
}

// absorb reinforces a similar existing node or creates a new one.
// Returns (wrote, reinforced) as 0/1 pairs.
func (c *Classifier) absorb(ctx context.Context, userID string, existing []Node, text string, fromUser bool) (int, int) {
	for _, n := range existing {
		if !IsSimilar(n.Content, text) {
			continue
		}
		c.reinforce(ctx, userID, n)
		return 0, 1
	}

	node := Node{Content: strings.TrimSpace(text)}

	if fromUser {
		node.Type = classify(text)
		node.Source = "chat:user"
		node.Tags = append([]string{"user"}, tagsFor(text)...)
		if node.Type == TypeIdentity || node.Type == TypePreference {
			node.setImportance(ImportanceCore)
			node.Locked = true
			node.LockType = string(node.Type)
			node.LockReason = "identity-critical fact"
			node.LockedAt = nowMillis()
		} else {
			node.setImportance(ImportanceHigh)
		}
	} else {
		node.Type = TypeDecision
		node.Source = "chat:assistant"
		node.Tags = append([]string{"assistant"}, tagsFor(text)...)
		node.setImportance(ImportanceMedium)
	}

	node.setStrength(1)

	if _, err := c.store.Upsert(ctx, userID, node); err != nil {
		c.logger.Warn("writeback create failed", "user", userID, "error", err)
		return 0, 0
	}
	return 1, 0
}

// reinforce bumps a matched node and steps its importance one rung,
// re-asserting lock fields when already locked
func (c *Classifier) reinforce(ctx context.Context, userID string, n Node) {
	bumped, err := c.store.Bump(ctx, userID, n.ID, 1)
	if err != nil || bumped == nil {
		return
	}

	now := nowMillis()
	patch := NodePatch{LastReinforcedAt: &now}

	if next := n.Importance.StepUp(); next.Rank() > bumped.ImportanceRank {
		patch.Importance = &next
	}
	if n.Locked {
		locked := true
		patch.Locked = &locked
		if n.LockType != "" {
			lockType := n.LockType
			patch.LockType = &lockType
		}
	}

	if _, err := c.store.Patch(ctx, userID, n.ID, patch); err != nil {
		c.logger.Warn("writeback reinforce patch failed", "user", userID, "node", n.ID, "error", err)
	}
}

// highSignal gates text: identity cues pass regardless of length,
// everything else needs minimum length and a trigger phrase
func highSignal(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}

	for _, cue := range identityCues {
		if strings.Contains(t, cue) {
			return true
		}
	}

	if utf8.RuneCountInString(t) < minSignalLength {
		return false
	}

	for _, trigger := range triggers {
		if strings.Contains(t, trigger) {
			return true
		}
	}
	return false
}

// classify maps text onto a coarse node type by phrase pattern
func classify(text string) NodeType {
	t := strings.ToLower(text)

	switch {
	case strings.Contains(t, "call me") || strings.Contains(t, "my name is"):
		return TypeIdentity
	case strings.Contains(t, "i prefer") || strings.Contains(t, "from now on"):
		return TypePreference
	case strings.Contains(t, "my daughter") || strings.Contains(t, "my son") ||
		strings.Contains(t, "my partner") || strings.Contains(t, "my dad") ||
		strings.Contains(t, "my mom"):
		return TypeRelationship
	case strings.Contains(t, "we're building") || strings.Contains(t, "i'm building") ||
		strings.Contains(t, "the goal is"):
		return TypeProject
	case strings.Contains(t, "launch") || strings.Contains(t, "pricing") || strings.Contains(t, "tier"):
		return TypeProject
	case strings.Contains(t, "repo") || strings.Contains(t, "deploy") || strings.Contains(t, "remember"):
		return TypeLesson
	default:
		return TypeEvent
	}
}

// tagKeywords is the fixed keyword scan for tags
var tagKeywords = []string{
	"launch",
	"pricing",
	"memory",
	"openai",
	"anthropic",
	"gemini",
	"repo",
	"deploy",
	"family",
	"voice",
}

func tagsFor(text string) []string {
	t := strings.ToLower(text)
	var tags []string
	for _, k := range tagKeywords {
		if strings.Contains(t, k) {
			tags = append(tags, k)
		}
	}
	return tags
}

// IsSimilar reports whether two texts describe the same fact: exact
// match after normalization, substring containment in either direction,
// or token overlap above the threshold relative to the smaller set.
func IsSimilar(a, b string) bool {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ta, tb := tokenSet(na), tokenSet(nb)
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	if smaller == 0 {
		return false
	}

	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	return float64(shared)/float64(smaller) > similarityOverlap
}

// normalizeText lowercases, strips punctuation and collapses whitespace
func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
