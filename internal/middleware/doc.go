// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

/*
Package middleware provides the chi middleware stack for the query API.

The router applies, outermost first:

	RequestID        X-Request-ID propagation into the logging context
	AccessLog        one zerolog line per request
	PrometheusMetrics
	SecurityHeaders
	CORS             go-chi/cors
	RateLimit        go-chi/httprate, keyed by client IP
	MaxBody          request body ceiling

All factories return func(http.Handler) http.Handler so they compose with
chi.Router.Use.
*/
package middleware
