package reliability

import (
	"sync"
	"time"
)

// State is the per-client circuit-breaker state. It is never shared across
// clients and is mutated only by its owning Policy — no lock is held across
// an upstream call, only across the bookkeeping around it.
type State struct {
	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// snapshot returns a point-in-time read, primarily for tests and metrics.
func (s *State) snapshot() (failures int, openUntil time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures, s.openUntil
}

// isOpen reports whether the breaker is currently open, relative to now.
func (s *State) isOpen(now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openUntil.IsZero() || !s.openUntil.After(now) {
		return false, 0
	}
	return true, s.openUntil.Sub(now)
}

// resetIfCooledDown clears failures/openUntil once the cooldown has
// elapsed; this is the "one free attempt" half-open transition.
func (s *State) resetIfCooledDown(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openUntil.IsZero() && !s.openUntil.After(now) {
		s.failures = 0
		s.openUntil = time.Time{}
	}
}

// recordSuccess clears the failure count.
func (s *State) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
	s.openUntil = time.Time{}
}

// recordFailure increments the failure count and, once it reaches
// threshold, opens the breaker for cooldown and resets the counter.
func (s *State) recordFailure(threshold int, cooldown time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= threshold {
		s.openUntil = now.Add(cooldown)
		s.failures = 0
	}
}
