// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package services provides suture.Service wrappers for Cartsage components.

Each wrapper translates a component's lifecycle into suture's
Serve(ctx) error contract and identifies itself through fmt.Stringer:

  - BasketWatcherService consumes basket change events from a watermill
    subscriber, resolves each basket's session and asks the engine to re-mine
    on the first change and on every session switch. A dropped subscription
    is released and retried after a fixed backoff until ctx ends.
  - RulesService regenerates rules at startup and on an optional interval.
  - HTTPServerService runs ListenAndServe and drains on cancellation.
  - WebSocketHubService runs the notification hub.

Return values drive supervisor behavior:

	ctx.Err()  shutdown requested, normal termination
	error      crashed, restarted with backoff

Background failures (mining errors, session lookups, malformed events) are
logged and absorbed inside the services and never surface as Serve errors.
*/
package services
