// Package health tracks connectivity to the remote services a session
// depends on.
//
// Each registered check runs in its own background goroutine at a
// configurable interval. Checks use failure/success thresholds to avoid
// flapping: a check must fail consecutively failureThreshold times before
// being marked unhealthy, and succeed successThreshold times before being
// marked healthy again. An unhealthy dependency never blocks the session;
// it is surfaced so the user knows why mutations keep failing.
package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. It returns nil when the dependency is
// reachable, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// checkConfig holds the configuration and runtime state for a single check.
//
// Concurrency model: run() is called from exactly one goroutine (the
// ticker), so the consecutive counters need no synchronization. The healthy
// flag and lastErr are read from arbitrary goroutines via Failures() and
// Healthy(), so they use atomic operations.
type checkConfig struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and updates thresholds accordingly.
// Must be called from a single goroutine.
func (c *checkConfig) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
}

// Monitor watches a set of dependency checks in the background.
type Monitor struct {
	// mu protects checks and cancel. Only held during registration (before
	// Start) and in Start/Stop; readers snapshot the slice under RLock.
	mu     sync.RWMutex
	checks []*checkConfig
	cancel context.CancelFunc
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{}
}

// Add registers a dependency check. Checks start in a healthy state and are
// marked unhealthy only after three consecutive failures.
func (m *Monitor) Add(name string, timeout time.Duration, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
	}
	c.healthy.Store(true) // assume healthy until proven otherwise
	m.checks = append(m.checks, c)
}

// Start begins running all registered checks in background goroutines at
// the given interval. Each check runs in its own goroutine.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	checks := make([]*checkConfig, len(m.checks))
	copy(checks, m.checks)
	m.mu.Unlock()

	for _, c := range checks {
		go runCheck(ctx, c, interval)
	}
}

// runCheck periodically executes a single check until the context is
// cancelled.
func runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start.
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// Healthy reports whether every registered check is currently passing.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	checks := m.checks
	m.mu.RUnlock()

	for _, c := range checks {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Failures returns the current failure message per unhealthy check, keyed
// by check name. An empty map means every dependency is reachable.
func (m *Monitor) Failures() map[string]string {
	m.mu.RLock()
	checks := make([]*checkConfig, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	failures := make(map[string]string)
	for _, c := range checks {
		if !c.isHealthy() {
			if err := c.getLastError(); err != nil {
				failures[c.name] = err.Error()
			} else {
				failures[c.name] = "check is unhealthy"
			}
		}
	}
	return failures
}

// Stop cancels all background check goroutines. It is safe to call Stop
// multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
