// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import "sync"

// TriggerReason explains why a regeneration was started.
type TriggerReason string

const (
	TriggerNone          TriggerReason = ""
	TriggerFirstInsert   TriggerReason = "first_insert"
	TriggerSessionChange TriggerReason = "session_change"
	TriggerStartup       TriggerReason = "startup"
	TriggerSchedule      TriggerReason = "schedule"
	TriggerRequest       TriggerReason = "request"
)

// SessionTrigger decides when a basket change warrants re-mining.
//
// The first change observed since construction always triggers. After that a
// change triggers only when its session differs from the session of the
// immediately preceding change. Only the last session is remembered, so a burst
// within one session collapses to one pass while A, B, A triggers three times.
//
// SessionTrigger is safe for concurrent use.
type SessionTrigger struct {
	mu          sync.Mutex
	observed    bool
	lastSession string
}

// NewSessionTrigger returns a trigger that has observed nothing yet.
func NewSessionTrigger() *SessionTrigger {
	return &SessionTrigger{}
}

// Observe records a change for session and reports whether to re-mine.
func (t *SessionTrigger) Observe(session string) TriggerReason {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.lastSession
	first := !t.observed
	t.observed = true
	t.lastSession = session

	switch {
	case first:
		return TriggerFirstInsert
	case session != prev:
		return TriggerSessionChange
	default:
		return TriggerNone
	}
}

// LastSession returns the most recently observed session.
func (t *SessionTrigger) LastSession() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSession
}
