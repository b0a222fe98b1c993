// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import "time"

// Config holds the policy constants spec'd as "configuration keys consumed"
// by the core: LOGIN_TRIES, RETRY_TIMEOUT, LOGIN_TIMEOUT, and
// FORCE_CLOSE_SLOW_CONNECTION, plus this expansion's named constants for the
// slow-consumer threshold and the scheduler tick stand-in. Loading Config
// from a file or environment is an ambient, out-of-core concern; see
// cmd/gameserver.
type Config struct {
	// LoginTries is the number of failed logins tolerated within
	// RetryTimeout before an IP is throttled. Zero disables throttling.
	LoginTries int

	// RetryTimeout is the window within which consecutive failures count
	// against LoginTries. It is compared at full time.Duration precision;
	// it is not rounded to whole seconds.
	RetryTimeout time.Duration

	// LoginTimeout is how long a throttled IP stays throttled after its
	// last login attempt.
	LoginTimeout time.Duration

	// ForceCloseSlowConnection enables the slow-consumer kill: closing a
	// connection whose output queue exceeds MaxOutputQueueDepth.
	ForceCloseSlowConnection bool

	// MaxOutputQueueDepth is the slow-consumer threshold (spec.md §4.3: 500).
	MaxOutputQueueDepth int

	// SchedulerMinTick stands in for SCHEDULER_MINTICKS: the interval at
	// which ConnectionManager reschedules its periodic throttle-table prune.
	SchedulerMinTick time.Duration
}

// DefaultConfig returns the policy defaults used when no ConfigOption
// overrides them.
func DefaultConfig() Config {
	return Config{
		LoginTries:               0,
		RetryTimeout:             5 * time.Second,
		LoginTimeout:             60 * time.Second,
		ForceCloseSlowConnection: false,
		MaxOutputQueueDepth:      500,
		SchedulerMinTick:         50 * time.Millisecond,
	}
}

// ConfigOption mutates a Config under construction, following the same
// functional-options idiom as the rest of this module's option sets.
type ConfigOption func(*Config)

// NewConfig builds a Config from DefaultConfig with opts applied in order.
func NewConfig(opts ...ConfigOption) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLoginTries sets LOGIN_TRIES.
func WithLoginTries(n int) ConfigOption {
	return func(c *Config) { c.LoginTries = n }
}

// WithRetryTimeout sets RETRY_TIMEOUT.
func WithRetryTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.RetryTimeout = d }
}

// WithLoginTimeout sets LOGIN_TIMEOUT.
func WithLoginTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.LoginTimeout = d }
}

// WithForceCloseSlowConnection sets FORCE_CLOSE_SLOW_CONNECTION.
func WithForceCloseSlowConnection(enabled bool) ConfigOption {
	return func(c *Config) { c.ForceCloseSlowConnection = enabled }
}

// WithMaxOutputQueueDepth overrides the slow-consumer threshold.
func WithMaxOutputQueueDepth(n int) ConfigOption {
	return func(c *Config) { c.MaxOutputQueueDepth = n }
}

// WithSchedulerMinTick overrides the periodic-prune granularity.
func WithSchedulerMinTick(d time.Duration) ConfigOption {
	return func(c *Config) { c.SchedulerMinTick = d }
}
