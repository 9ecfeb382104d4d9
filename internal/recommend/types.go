// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Basket is one recorded transaction.
type Basket struct {
	// ID uniquely identifies the basket in the source.
	ID string `json:"basket_id"`

	// SessionID identifies the shopping session (or user) that produced the basket.
	SessionID string `json:"session_id"`

	// Items are the purchased item identifiers in recorded order.
	Items []string `json:"items"`

	// CreatedAt is when the basket was first recorded.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the basket was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeOp describes how a basket changed in the source.
type ChangeOp string

const (
	// ChangeCreated is emitted when a new basket is recorded.
	ChangeCreated ChangeOp = "created"

	// ChangeUpdated is emitted when an existing basket is modified.
	ChangeUpdated ChangeOp = "updated"
)

// Valid reports whether op is a known change operation.
func (op ChangeOp) Valid() bool {
	return op == ChangeCreated || op == ChangeUpdated
}

// Rule is a directional association rule Antecedents => Consequents.
// Rules are immutable once mined.
type Rule struct {
	Antecedents []string `json:"antecedents"`
	Consequents []string `json:"consequents"`

	// Support is the fraction of baskets containing every item of the rule.
	Support float64 `json:"support"`

	// Confidence is the fraction of antecedent-containing baskets that also
	// contain the consequents.
	Confidence float64 `json:"confidence"`

	// Lift is the ratio of observed co-occurrence to that expected under independence.
	Lift float64 `json:"lift"`
}

// ruleArrow separates antecedents from consequents in a rule identity.
const ruleArrow = "=>"

// ID returns the canonical rule identity. Items on each side are sorted before
// joining, so the identity does not depend on the order the miner emitted them in
// and stats recorded under it stay attached across mining passes.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (r Rule) ID() string {
	return canonicalSide(r.Antecedents) + ruleArrow + canonicalSide(r.Consequents)
}

// AppliesTo reports whether every antecedent item is present in the cart.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (r Rule) AppliesTo(cart CartContext) bool {
	for _, item := range r.Antecedents {
		if !cart.Contains(item) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (r Rule) String() string {
	return fmt.Sprintf("%s (support=%.4f confidence=%.4f lift=%.4f)", r.ID(), r.Support, r.Confidence, r.Lift)
}

func canonicalSide(items []string) string {
	sorted := slices.Clone(items)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// ParseRuleID splits a canonical rule identity into its two sides.
// It is the inverse of Rule.ID for well-formed identities.
func ParseRuleID(id string) (antecedents, consequents []string, err error) {
	left, right, ok := strings.Cut(id, ruleArrow)
	if !ok || left == "" || right == "" {
		return nil, nil, fmt.Errorf("%w: malformed rule id %q", ErrUnknownRule, id)
	}
	return strings.Split(left, ","), strings.Split(right, ","), nil
}

// RuleSet is the ordered output of one mining pass.
type RuleSet []Rule

// IDs returns the canonical identity of every rule, in order.
func (rs RuleSet) IDs() []string {
	ids := make([]string, len(rs))
	for i := range rs {
		ids[i] = rs[i].ID()
	}
	return ids
}

// Applicable returns the rules whose antecedents are all in the cart.
// An empty cart applies no filter and returns every rule.
func (rs RuleSet) Applicable(cart CartContext) RuleSet {
	if cart.Empty() {
		return rs
	}
	out := make(RuleSet, 0, len(rs))
	for i := range rs {
		if rs[i].AppliesTo(cart) {
			out = append(out, rs[i])
		}
	}
	return out
}

// Contains reports whether a rule with the given identity is in the set.
func (rs RuleSet) Contains(ruleID string) bool {
	for i := range rs {
		if rs[i].ID() == ruleID {
			return true
		}
	}
	return false
}

// RuleStats holds the feedback counters for one rule identity. Stores stamp
// UpdatedAt when an entry is created, zeroed or not, and on every increment.
type RuleStats struct {
	RuleID    string    `json:"rule_id"`
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PosteriorMean returns the mean of Beta(successes+1, failures+1).
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (s RuleStats) PosteriorMean() float64 {
	return float64(s.Successes+1) / float64(s.Successes+s.Failures+2)
}

// StatField names a RuleStats counter.
type StatField int

const (
	// StatSuccesses counts accepted recommendations.
	StatSuccesses StatField = iota

	// StatFailures counts rejected recommendations.
	StatFailures
)

// String returns the storage column name of the field.
func (f StatField) String() string {
	switch f {
	case StatSuccesses:
		return "successes"
	case StatFailures:
		return "failures"
	default:
		return "unknown"
	}
}

// FieldFor maps a feedback outcome to the counter it increments.
func FieldFor(success bool) StatField {
	if success {
		return StatSuccesses
	}
	return StatFailures
}

// MaxCartItems bounds the size of a cart accepted for recommendation.
const MaxCartItems = 512

// MaxItemIDLen bounds item identifiers.
const MaxItemIDLen = 256

// ValidItemID reports whether s can be used as an item identifier. The ','
// and "=>" separators of rule identities are not allowed inside an item.
func ValidItemID(s string) bool {
	if strings.TrimSpace(s) == "" || len(s) > MaxItemIDLen {
		return false
	}
	return !strings.Contains(s, ",") && !strings.Contains(s, ruleArrow)
}

// CartContext is the set of items in a shopper's cart at request time.
type CartContext struct {
	items map[string]struct{}
}

// NewCartContext validates the item identifiers and builds a cart.
// Duplicates collapse. Oversized carts and malformed identifiers are
// rejected with ErrInvalidCartContext.
func NewCartContext(items []string) (CartContext, error) {
	if len(items) > MaxCartItems {
		return CartContext{}, fmt.Errorf("%w: %d items exceeds limit of %d", ErrInvalidCartContext, len(items), MaxCartItems)
	}
	set := make(map[string]struct{}, len(items))
	for i, item := range items {
		if !ValidItemID(item) {
			return CartContext{}, fmt.Errorf("%w: item %d must be a non-blank id of at most %d bytes without ',' or '=>'",
				ErrInvalidCartContext, i, MaxItemIDLen)
		}
		set[item] = struct{}{}
	}
	return CartContext{items: set}, nil
}

// Empty reports whether the cart holds no items.
func (c CartContext) Empty() bool {
	return len(c.items) == 0
}

// Contains reports whether item is in the cart.
func (c CartContext) Contains(item string) bool {
	_, ok := c.items[item]
	return ok
}

// Len returns the number of distinct items.
func (c CartContext) Len() int {
	return len(c.items)
}

// BasketSource supplies the baskets to mine.
type BasketSource interface {
	// ListBaskets returns every recorded basket.
	ListBaskets(ctx context.Context) ([]Basket, error)

	// SessionOf returns the session identity of a basket. ok is false when the
	// basket does not exist or has no session.
	SessionOf(ctx context.Context, basketID string) (session string, ok bool, err error)
}

// RuleStore holds the latest mined RuleSet.
type RuleStore interface {
	// Replace swaps in a new RuleSet. Readers see the old set or the new set,
	// never a mix.
	Replace(rules RuleSet) error

	// Read returns the current RuleSet, ErrNotYetGenerated if none was ever
	// written, or ErrCorruptState if the stored content cannot be parsed.
	Read() (RuleSet, error)
}

// StatsStore persists RuleStats keyed by canonical rule identity.
type StatsStore interface {
	// GetStats returns the stats for one rule; ok is false when absent.
	GetStats(ctx context.Context, ruleID string) (stats RuleStats, ok bool, err error)

	// GetStatsBatch returns the stats present for the given identities.
	GetStatsBatch(ctx context.Context, ruleIDs []string) (map[string]RuleStats, error)

	// EnsureStats creates zeroed entries for identities that have none.
	EnsureStats(ctx context.Context, ruleIDs []string) error

	// UpsertIncrement atomically adds one to field. When the entry is absent it
	// is created if createIfAbsent is set, otherwise ErrUnknownRule is returned.
	UpsertIncrement(ctx context.Context, ruleID string, field StatField, createIfAbsent bool) (RuleStats, error)
}

// RuleMiner turns baskets into a RuleSet.
type RuleMiner interface {
	Mine(ctx context.Context, baskets []Basket) (RuleSet, error)
}

// Selection is the outcome of choosing one rule among candidates.
type Selection struct {
	Rule   Rule      `json:"rule"`
	RuleID string    `json:"rule_id"`
	Sample float64   `json:"sample"`
	Stats  RuleStats `json:"stats"`

	// Fallback is set when the rule was chosen uniformly at random because no
	// posterior sample could be drawn.
	Fallback bool `json:"fallback"`
}

// Selector picks one rule among candidates and learns from feedback.
type Selector interface {
	// Select returns nil when candidates is empty.
	Select(ctx context.Context, candidates RuleSet) (*Selection, error)

	// RecordFeedback returns ErrUnknownRule for identities never offered.
	RecordFeedback(ctx context.Context, ruleID string, success bool) (RuleStats, error)
}
