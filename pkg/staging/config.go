// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package staging

import (
	"time"
)

// Config represents configuration for a Stage
type Config struct {
	// Capacity of the underlying ring buffer. A stage holds at most
	// Capacity-1 bytes, delimiters included.
	Capacity int
	// Delimiter terminates each record.
	Delimiter byte
	// HistorySize is the number of delivered records kept for Recent.
	// Negative disables history.
	HistorySize int

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// MaxWait bounds how long Push, Fill and Pull wait for the other side.
	MaxWait time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Capacity:             4096,
		Delimiter:            '\n',
		HistorySize:          16,
		RetryInitialInterval: 5 * time.Millisecond,
		RetryMaxInterval:     250 * time.Millisecond,
		MaxWait:              15 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Capacity == 0 {
		c.Capacity = defaults.Capacity
	}
	if c.Delimiter == 0 {
		c.Delimiter = defaults.Delimiter
	}
	if c.HistorySize == 0 {
		c.HistorySize = defaults.HistorySize
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = defaults.RetryInitialInterval
	}
	if c.RetryMaxInterval == 0 {
		c.RetryMaxInterval = defaults.RetryMaxInterval
	}
	if c.MaxWait == 0 {
		c.MaxWait = defaults.MaxWait
	}
}
