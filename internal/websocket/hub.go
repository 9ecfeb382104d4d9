// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/logging"
	"github.com/tomtom215/cartsage/internal/metrics"
	"github.com/tomtom215/cartsage/internal/recommend"
)

// Message types.
const (
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeRulesUpdated = "rules_updated"
	MessageTypeStatsUpdated = "stats_updated"
)

// Message is the envelope for every frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RulesUpdatedData is sent after a mining pass replaces the rule set.
type RulesUpdatedData struct {
	Trigger     string `json:"trigger"`
	Rules       int    `json:"rules"`
	Baskets     int    `json:"baskets"`
	GeneratedAt string `json:"generated_at"`
	DurationMS  int64  `json:"duration_ms"`
}

// StatsUpdatedData is sent after feedback is recorded.
type StatsUpdatedData struct {
	RuleID    string `json:"rule_id"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
}

// Hub maintains the set of active clients and broadcasts to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// RunWithContext processes registrations and broadcasts until ctx ends, then
// closes every client. Lifecycle events are drained before broadcasts so a
// freshly registered client sees the next message.
func (h *Hub) RunWithContext(ctx context.Context) error {
	logger := logging.WithComponent("websocket-hub")
	for {
		select {
		case <-ctx.Done():
			n := h.closeAllClients()
			logger.Info().Int("clients_closed", n).Msg("websocket hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			n := h.closeAllClients()
			logger.Info().Int("clients_closed", n).Msg("websocket hub stopped")
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
}

// sortedClients must be called with mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers msg in client ID order and drops clients whose
// buffer is full.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WSConnections.Set(0)
	return len(clients)
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(messageType string, data interface{}) bool {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
		return true
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
		return false
	}
}

// BroadcastRulesUpdated announces a replaced rule set. Its signature matches
// recommend.Engine.OnRulesReplaced.
func (h *Hub) BroadcastRulesUpdated(result recommend.RegenerationResult) {
	h.Broadcast(MessageTypeRulesUpdated, RulesUpdatedData{
		Trigger:     string(result.Trigger),
		Rules:       result.Rules,
		Baskets:     result.Baskets,
		GeneratedAt: result.FinishedAt.UTC().Format(time.RFC3339),
		DurationMS:  result.DurationMS,
	})
}

// BroadcastStatsUpdated announces new counters for a rule.
func (h *Hub) BroadcastStatsUpdated(stats recommend.RuleStats) {
	h.Broadcast(MessageTypeStatsUpdated, StatsUpdatedData{
		RuleID:    stats.RuleID,
		Successes: stats.Successes,
		Failures:  stats.Failures,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes a message.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
