// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import "errors"

// Sentinel errors. Callers match them with errors.Is; every error returned by
// this package and its subpackages wraps at most one of them.
var (
	// ErrSourceUnavailable means the basket source could not be read. Recoverable.
	ErrSourceUnavailable = errors.New("basket source unavailable")

	// ErrNotYetGenerated means no rule set was ever written.
	ErrNotYetGenerated = errors.New("rules not yet generated")

	// ErrCorruptState means the stored rule set could not be parsed.
	ErrCorruptState = errors.New("rule store content is corrupt")

	// ErrUnknownRule means feedback referenced a rule identity that was never offered.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInvalidCartContext means the cart payload was malformed.
	ErrInvalidCartContext = errors.New("invalid cart context")

	// ErrUpdateInProgress means a regeneration did not finish within the caller's ceiling.
	ErrUpdateInProgress = errors.New("rule update in progress")
)

// ErrorKind classifies an error for callers that must react differently to
// each failure class.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindSourceUnavailable
	KindNotYetGenerated
	KindCorruptState
	KindUnknownRule
	KindInvalidCartContext
	KindUpdateInProgress
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindNone:               "none",
	KindSourceUnavailable:  "source_unavailable",
	KindNotYetGenerated:    "not_yet_generated",
	KindCorruptState:       "corrupt_state",
	KindUnknownRule:        "unknown_rule",
	KindInvalidCartContext: "invalid_cart_context",
	KindUpdateInProgress:   "update_in_progress",
	KindInternal:           "internal",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindOf returns the kind of err. A nil error is KindNone; an error wrapping no
// sentinel is KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, ErrNotYetGenerated):
		return KindNotYetGenerated
	case errors.Is(err, ErrCorruptState):
		return KindCorruptState
	case errors.Is(err, ErrUnknownRule):
		return KindUnknownRule
	case errors.Is(err, ErrInvalidCartContext):
		return KindInvalidCartContext
	case errors.Is(err, ErrUpdateInProgress):
		return KindUpdateInProgress
	default:
		return KindInternal
	}
}
