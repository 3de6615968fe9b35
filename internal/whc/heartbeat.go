package whc

import (
	"sync"

	"github.com/ocx/ddscore/internal/rtps"
)

// HeartbeatScheduler paces periodic heartbeats for one reliable writer with
// a bounded exponential backoff: the interval doubles each time a heartbeat
// goes out with no intervening ack, and resets to the floor the moment any
// ack arrives. This mirrors the generation/expiry bookkeeping in
// CircuitBreaker.currentState (an expiry compared against "now" decides
// whether to transition) without adopting circuit breaker semantics
// themselves: a writer has no "open" state that refuses requests, only a
// due/not-due heartbeat clock.
type HeartbeatScheduler struct {
	mu sync.Mutex

	floor rtps.Duration
	ceil  rtps.Duration

	interval rtps.Duration
	expiry   rtps.Time
}

// NewHeartbeatScheduler builds a scheduler whose interval starts at floor
// and never grows past ceil.
func NewHeartbeatScheduler(floor, ceil rtps.Duration) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		floor:    floor,
		ceil:     ceil,
		interval: floor,
	}
}

// DefaultHeartbeatScheduler uses the 100ms floor / 5s cap resolved for
// SPEC_FULL.md's heartbeat backoff.
func DefaultHeartbeatScheduler() *HeartbeatScheduler {
	return NewHeartbeatScheduler(rtps.Millis(100), rtps.Millis(5000))
}

// Due reports whether a heartbeat should be sent now.
func (s *HeartbeatScheduler) Due(now rtps.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry == 0 || !now.Before(s.expiry)
}

// Sent records that a heartbeat just went out, schedules the next one at
// the current interval, and doubles the interval in case this one also
// goes unacked, capped at s.ceil.
func (s *HeartbeatScheduler) Sent(now rtps.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = now.Add(s.interval)
	next := s.interval * 2
	if next > s.ceil {
		next = s.ceil
	}
	s.interval = next
}

// Acked resets the backoff to its floor: the writer just heard from a
// reader, so the next heartbeat can wait the full floor interval rather
// than whatever the backoff had grown to.
func (s *HeartbeatScheduler) Acked(now rtps.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = s.floor
	s.expiry = now.Add(s.floor)
}

// Interval returns the current backoff interval, for metrics/tests.
func (s *HeartbeatScheduler) Interval() rtps.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}
