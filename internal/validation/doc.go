// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

// Package validation validates API payloads with go-playground/validator v10.
//
// A single validator instance is built once and shared. Field names in errors
// use the json tag, so messages match what the client sent. Two custom tags
// cover Cartsage identifiers:
//
//	itemid  non-blank item identifier without the ',' or "=>" separators used
//	        in rule identities
//	ruleid  canonical rule identity "a,b=>c"
//
// Failures convert to the API's VALIDATION_ERROR shape via ToAPIError.
package validation
