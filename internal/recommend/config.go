// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package recommend

import (
	"fmt"
	"time"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Mining contains the association-rule thresholds.
	Mining MiningConfig `json:"mining"`

	// RegenerateTimeout is how long a request waits for a regeneration pass
	// before reporting ErrUpdateInProgress. The pass itself keeps running.
	RegenerateTimeout time.Duration `json:"regenerate_timeout"`
}

// MiningConfig holds the thresholds a rule must meet to be emitted.
type MiningConfig struct {
	// MinSupport is the minimum fraction of baskets containing the full itemset.
	MinSupport float64 `json:"min_support"`

	// MinConfidence is the minimum confidence of a rule.
	MinConfidence float64 `json:"min_confidence"`

	// MinLift is the minimum lift of a rule.
	MinLift float64 `json:"min_lift"`

	// MinLength is the minimum combined antecedent+consequent size.
	MinLength int `json:"min_length"`

	// MaxLength caps itemset size. Zero means unbounded.
	MaxLength int `json:"max_length"`
}

// Default mining thresholds, chosen empirically for sparse retail baskets.
const (
	DefaultMinSupport    = 0.001
	DefaultMinConfidence = 0.2
	DefaultMinLift       = 1.0
	DefaultMinLength     = 2

	DefaultRegenerateTimeout = 10 * time.Second
)

// DefaultMiningConfig returns the default thresholds.
func DefaultMiningConfig() MiningConfig {
	return MiningConfig{
		MinSupport:    DefaultMinSupport,
		MinConfidence: DefaultMinConfidence,
		MinLift:       DefaultMinLift,
		MinLength:     DefaultMinLength,
	}
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Mining:            DefaultMiningConfig(),
		RegenerateTimeout: DefaultRegenerateTimeout,
	}
}

// Validate checks the thresholds.
//
//nolint:gocritic // value receiver is intentional for immutable semantics
func (m MiningConfig) Validate() error {
	if m.MinSupport <= 0 || m.MinSupport > 1 {
		return fmt.Errorf("mining.min_support must be in (0, 1], got %f", m.MinSupport)
	}
	if m.MinConfidence < 0 || m.MinConfidence > 1 {
		return fmt.Errorf("mining.min_confidence must be in [0, 1], got %f", m.MinConfidence)
	}
	if m.MinLift < 0 {
		return fmt.Errorf("mining.min_lift must be non-negative, got %f", m.MinLift)
	}
	if m.MinLength < 1 {
		return fmt.Errorf("mining.min_length must be positive, got %d", m.MinLength)
	}
	if m.MaxLength != 0 && m.MaxLength < m.MinLength {
		return fmt.Errorf("mining.max_length must be 0 or >= min_length, got %d < %d", m.MaxLength, m.MinLength)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Mining.Validate(); err != nil {
		return err
	}
	if c.RegenerateTimeout <= 0 {
		return fmt.Errorf("regenerate_timeout must be positive, got %v", c.RegenerateTimeout)
	}
	return nil
}
