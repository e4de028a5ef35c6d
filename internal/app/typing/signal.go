/*
Package typing maintains the transient "who is typing" indicator.

The signal holds at most one username, the most recent typer observed; a newer
typing event overwrites it and re-arms the expiry timer. Without renewal the signal
clears itself after the configured lifetime.
*/
package typing

import (
	"sync"
	"time"
)

// DefaultTTL is how long the indicator stays visible without a renewing event.
const DefaultTTL = 2 * time.Second

// Signal is the self-expiring typing indicator. Safe for concurrent use.
type Signal struct {
	mu sync.Mutex

	ttl     time.Duration
	current string

	// gen invalidates expiry callbacks from timers that were superseded by a
	// newer Set before they fired.
	gen   uint64
	timer *time.Timer

	// onClear is invoked (outside the lock) when the signal expires on its own,
	// so the owner can publish the change.
	onClear func()
}

// NewSignal creates a Signal with the given lifetime. A non-positive ttl falls
// back to DefaultTTL. onClear may be nil.
func NewSignal(ttl time.Duration, onClear func()) *Signal {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Signal{
		ttl:     ttl,
		onClear: onClear,
	}
}

// Set records username as the current typer and re-arms the expiry timer.
func (s *Signal) Set(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = username
	s.gen++
	gen := s.gen

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.ttl, func() {
		s.expire(gen)
	})
}

// expire clears the signal if no newer Set has superseded this timer.
func (s *Signal) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.current == "" {
		s.mu.Unlock()
		return
	}
	s.current = ""
	s.mu.Unlock()

	if s.onClear != nil {
		s.onClear()
	}
}

// Current returns the username of the most recent typer, or "" when idle.
func (s *Signal) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Stop clears the signal and cancels any pending expiry. Called on teardown so no
// timer acts on stale state afterwards.
func (s *Signal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.current = ""
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
