package memory

import (
	"fmt"
	"time"
)

// NodeType classifies what kind of fact a node holds
type NodeType string

const (
	TypeIdentity     NodeType = "identity"
	TypeRelationship NodeType = "relationship"
	TypeMission      NodeType = "mission"
	TypePreference   NodeType = "preference"
	TypeProject      NodeType = "project"
	TypeLesson       NodeType = "lesson"
	TypeDecision     NodeType = "decision"
	TypeEvent        NodeType = "event"
)

var validTypes = map[NodeType]bool{
	TypeIdentity:     true,
	TypeRelationship: true,
	TypeMission:      true,
	TypePreference:   true,
	TypeProject:      true,
	TypeLesson:       true,
	TypeDecision:     true,
	TypeEvent:        true,
}

// Importance is the ordered ladder a node climbs through reinforcement
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
	ImportanceCore   Importance = "core"
)

var importanceLadder = []Importance{ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCore}

// Rank returns the integer position of an importance level on the
// ladder. Unknown values rank as low.
func (i Importance) Rank() int {
	for n, level := range importanceLadder {
		if level == i {
			return n
		}
	}
	return 0
}

// StepUp returns the next rung on the ladder, saturating at core
func (i Importance) StepUp() Importance {
	r := i.Rank()
	if r >= len(importanceLadder)-1 {
		return ImportanceCore
	}
	return importanceLadder[r+1]
}

func (i Importance) valid() bool {
	for _, level := range importanceLadder {
		if level == i {
			return true
		}
	}
	return false
}

const (
	// PromotionThreshold is the strength at which a node reaches high
	// importance. Twice it reaches core, half of it medium.
	PromotionThreshold = 10.0

	// MaxStrength caps the gravity score
	MaxStrength = 999999.0
)

// ImportanceForStrength maps a strength value onto the ladder
func ImportanceForStrength(strength float64) Importance {
	switch {
	case strength >= 2*PromotionThreshold:
		return ImportanceCore
	case strength >= PromotionThreshold:
		return ImportanceHigh
	case strength >= PromotionThreshold/2:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

// Node is a single scored, typed fact fragment about the user or
// conversation. Strength and Weight carry the same gravity score; Weight
// exists for compatibility with older persisted records and is never
// allowed to diverge from Strength. Timestamps are unix milliseconds.
type Node struct {
	ID                 string     `json:"id"`
	Type               NodeType   `json:"type"`
	Content            string     `json:"content"`
	Tags               []string   `json:"tags"`
	Source             string     `json:"source"`
	Importance         Importance `json:"importance"`
	ImportanceRank     int        `json:"importanceRank"`
	Strength           float64    `json:"strength"`
	Weight             float64    `json:"weight"`
	ReinforcementCount int        `json:"reinforcementCount"`
	LastReinforcedAt   int64      `json:"lastReinforcedAt,omitempty"`
	Locked             bool       `json:"locked"`
	LockType           string     `json:"lockType,omitempty"`
	LockReason         string     `json:"lockReason,omitempty"`
	LockedAt           int64      `json:"lockedAt,omitempty"`
	CreatedAt          int64      `json:"createdAt"`
	UpdatedAt          int64      `json:"updatedAt"`
}

// setStrength writes the gravity score to both fields
func (n *Node) setStrength(s float64) {
	if s < 0 {
		s = 0
	}
	if s > MaxStrength {
		s = MaxStrength
	}
	n.Strength = s
	n.Weight = s
}

// setImportance keeps the rank in step with the level
func (n *Node) setImportance(i Importance) {
	n.Importance = i
	n.ImportanceRank = i.Rank()
}

// normalize repairs a node loaded from storage: rank matches importance,
// weight matches strength, missing fields get defaults.
func (n *Node) normalize() {
	if n.Type == "" || !validTypes[n.Type] {
		n.Type = TypeEvent
	}
	if !n.Importance.valid() {
		n.Importance = ImportanceLow
	}
	n.ImportanceRank = n.Importance.Rank()
	if n.Weight != n.Strength {
		// strength is authoritative
		n.Weight = n.Strength
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
}

// NodePatch carries optional field updates for Patch. Nil fields are
// left untouched.
type NodePatch struct {
	Type               *NodeType
	Content            *string
	Tags               []string
	Source             *string
	Importance         *Importance
	Strength           *float64
	ReinforcementCount *int
	LastReinforcedAt   *int64
	Locked             *bool
	LockType           *string
	LockReason         *string
	LockedAt           *int64
}

func (p *NodePatch) validate() error {
	if p.Type != nil && !validTypes[*p.Type] {
		return fmt.Errorf("invalid node type: %s", *p.Type)
	}
	if p.Importance != nil && !p.Importance.valid() {
		return fmt.Errorf("invalid importance: %s", *p.Importance)
	}
	if p.Strength != nil && (*p.Strength < 0 || *p.Strength > MaxStrength) {
		return fmt.Errorf("strength out of range: %f", *p.Strength)
	}
	if p.ReinforcementCount != nil && *p.ReinforcementCount < 0 {
		return fmt.Errorf("reinforcementCount must be non-negative")
	}
	return nil
}

// apply merges the patch into the node. Importance updates recompute the
// rank; strength updates keep weight equal.
func (p *NodePatch) apply(n *Node) {
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Tags != nil {
		n.Tags = p.Tags
	}
	if p.Source != nil {
		n.Source = *p.Source
	}
	if p.Importance != nil {
		n.setImportance(*p.Importance)
	}
	if p.Strength != nil {
		n.setStrength(*p.Strength)
	}
	if p.ReinforcementCount != nil {
		n.ReinforcementCount = *p.ReinforcementCount
	}
	if p.LastReinforcedAt != nil {
		n.LastReinforcedAt = *p.LastReinforcedAt
	}
	if p.Locked != nil {
		n.Locked = *p.Locked
	}
	if p.LockType != nil {
		n.LockType = *p.LockType
	}
	if p.LockReason != nil {
		n.LockReason = *p.LockReason
	}
	if p.LockedAt != nil {
		n.LockedAt = *p.LockedAt
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
