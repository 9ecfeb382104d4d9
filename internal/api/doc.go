// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package api exposes the rule set, recommendations and feedback over HTTP.

Routes (all JSON, wrapped in a {status, data, metadata, error} envelope):

	GET  /api/v1/rules                  current rule set
	POST /api/v1/rules/regenerate       re-mine; ?async=true returns at once
	GET  /api/v1/rules/{id}/stats       success/failure counters for one rule
	POST /api/v1/recommendations        {"cart": [...]} -> one rule or none
	POST /api/v1/feedback               {"rule_id": "...", "success": true}
	POST /api/v1/baskets                record a basket and emit a change event
	GET  /api/v1/baskets/{id}
	GET  /api/v1/health[/live|/ready]
	GET  /api/v1/ws                     rules_updated / stats_updated push
	GET  /metrics                       Prometheus

GET /api/rules and POST /api/update-rules remain as aliases for older
frontends.

Domain errors map to stable codes through recommend.KindOf:

	RULES_NOT_READY       404  rules were never generated
	RULES_CORRUPT         500  stored rule file does not parse
	UNKNOWN_RULE          404  feedback or stats for an identity never mined
	INVALID_CART_CONTEXT  400
	SOURCE_UNAVAILABLE    503  basket source unreachable
	UPDATE_IN_PROGRESS    202  regeneration outlived the request ceiling

"No matching rule" is a 200 with a null rule, never an error.
*/
package api
