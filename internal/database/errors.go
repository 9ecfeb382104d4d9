// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package database

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/cartsage/internal/logging"
)

const (
	defaultQueryTimeout = 30 * time.Second

	maxConflictRetries = 3
	baseRetryDelay     = time.Millisecond
)

// closeQuietly closes c, logging instead of returning the error.
func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("close failed")
	}
}

// ensureContext applies the default query timeout when ctx has no deadline.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// isTransactionConflict reports DuckDB optimistic-concurrency failures.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update")
}

// isInternalError reports DuckDB INTERNAL errors, which concurrent index
// updates occasionally raise and which succeed on retry.
func isInternalError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "INTERNAL Error")
}

// withConflictRetry runs fn, retrying with exponential backoff (1ms, 2ms,
// 4ms) while DuckDB reports a retryable conflict.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(baseRetryDelay << (attempt - 1)):
			}
		}
		err = fn()
		if !isTransactionConflict(err) && !isInternalError(err) {
			return err
		}
	}
	return err
}
