// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package websocket pushes rule-set notifications to connected frontends.

A Hub owns the client set and fans out Messages; it runs under supervision
via RunWithContext. The engine's OnRulesReplaced listener calls
BroadcastRulesUpdated after every successful replace, so dashboards can
refetch /api/v1/rules instead of polling. Feedback updates are broadcast as
stats_updated.

Clients may send {"type":"ping"} and receive {"type":"pong"}. Slow clients
whose send buffer fills are dropped rather than blocking the hub.

Message shape:

	{"type": "rules_updated", "data": {"trigger": "session_change", "rules": 42, ...}}
*/
package websocket
