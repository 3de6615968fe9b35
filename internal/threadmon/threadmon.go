// Package threadmon implements the thread liveness monitor (spec.md section
// 4.J): a statechange_barrier watching each worker thread's "awake" counter,
// logging a thread as stuck if it stays continuously awake longer than a
// configured bound without the counter advancing.
//
// Grounded on internal/fabric's SpokeInfo/HubMetrics pattern (a last-seen
// timestamp plus atomic counters sampled by a separate goroutine, with no
// lock held across the read), adapted from per-connection heartbeat
// tracking to per-thread awake/asleep tracking.
package threadmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handle is given to a worker thread so it can mark itself awake (entering
// a blocking I/O call or hash-table operation) and asleep (returning from
// one), per spec.md's "awake/asleep calls around I/O and hash-table
// operations are the observation points".
type Handle struct {
	name    string
	tracker *Tracker
}

// Awake increments this thread's awake counter. Called on entry to a
// blocking section.
func (h *Handle) Awake() {
	h.tracker.bump(h.name, 1)
}

// Asleep increments this thread's awake counter too: the barrier only
// cares that the counter *advances* between samples, whether the thread
// is entering or leaving a blocking section (a thread alternating rapidly
// between awake and asleep is, definitionally, not stuck).
func (h *Handle) Asleep() {
	h.tracker.bump(h.name, 1)
}

type threadState struct {
	count     int64
	lastCount int64
	since     time.Time
	stuck     bool
}

// Tracker holds one counter per registered thread name and periodically
// asserts each counter either stays at zero (idle) or has advanced since
// the previous sample.
type Tracker struct {
	logger *slog.Logger
	bound  time.Duration

	mu      sync.Mutex
	threads map[string]*threadState
}

// NewTracker constructs a tracker that flags a thread as stuck once it has
// been continuously awake (counter unchanged and nonzero) for longer than
// bound.
func NewTracker(bound time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:  logger,
		bound:   bound,
		threads: make(map[string]*threadState),
	}
}

// Register creates a Handle for a named worker thread (e.g. "recv-0",
// "gc", "spdp-announce").
func (t *Tracker) Register(name string) *Handle {
	t.mu.Lock()
	if _, ok := t.threads[name]; !ok {
		t.threads[name] = &threadState{since: time.Now()}
	}
	t.mu.Unlock()
	return &Handle{name: name, tracker: t}
}

func (t *Tracker) bump(name string, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.threads[name]
	if !ok {
		s = &threadState{since: time.Now()}
		t.threads[name] = s
	}
	s.count += delta
}

// Run samples every interval until ctx is cancelled, logging a thread as
// stuck the first time it crosses bound, and logging recovery once its
// counter advances again.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.sample(now)
		}
	}
}

func (t *Tracker) sample(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, s := range t.threads {
		if s.count != s.lastCount {
			s.lastCount = s.count
			s.since = now
			if s.stuck {
				s.stuck = false
				t.logger.Info("threadmon: thread recovered", "thread", name)
			}
			continue
		}
		if s.count == 0 {
			continue
		}
		if !s.stuck && now.Sub(s.since) > t.bound {
			s.stuck = true
			t.logger.Warn("threadmon: thread stuck", "thread", name, "awake_since", s.since, "bound", t.bound)
		}
	}
}

// Stuck reports the names of threads currently flagged stuck.
func (t *Tracker) Stuck() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for name, s := range t.threads {
		if s.stuck {
			out = append(out, name)
		}
	}
	return out
}
