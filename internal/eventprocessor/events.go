// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package eventprocessor

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cartsage/internal/recommend"
)

// DefaultTopic carries basket change events.
const DefaultTopic = "basket_changes"

// Metadata keys set on every change message.
const (
	MetadataOp       = "op"
	MetadataBasketID = "basket_id"
)

// ChangeEvent reports that a basket was created or updated.
type ChangeEvent struct {
	EventID    string             `json:"event_id"`
	Op         recommend.ChangeOp `json:"op"`
	BasketID   string             `json:"basket_id"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewChangeEvent returns an event with a fresh ID and the current time.
func NewChangeEvent(op recommend.ChangeOp, basketID string) ChangeEvent {
	return ChangeEvent{
		EventID:    uuid.New().String(),
		Op:         op,
		BasketID:   basketID,
		OccurredAt: time.Now().UTC(),
	}
}

// ErrInvalidEvent is returned for events that cannot be acted upon.
var ErrInvalidEvent = errors.New("invalid change event")

// Validate checks the fields the watcher relies on.
func (e *ChangeEvent) Validate() error {
	if !e.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidEvent, e.Op)
	}
	if e.BasketID == "" {
		return fmt.Errorf("%w: basket_id is required", ErrInvalidEvent)
	}
	return nil
}

// EncodeChangeEvent serializes an event.
func EncodeChangeEvent(e *ChangeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal change event: %w", err)
	}
	return data, nil
}

// DecodeChangeEvent parses and validates an event payload.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return e, nil
}
