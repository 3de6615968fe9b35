// Package lease implements bounded-latency liveliness expiration for local
// and remote entities (spec.md section 4.B), ported from Cyclone DDS's
// src/core/ddsi/src/q_lease.c fibonacci-heap lease scheduler.
package lease

import (
	"sync"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rtps"
)

// tschedNotOnHeap mirrors q_lease.c's TSCHED_NOT_ON_HEAP sentinel: a lease
// not currently scheduled carries this value so renew/set_expiry can tell
// "not scheduled" apart from "scheduled at time zero".
const tschedNotOnHeap = rtps.Time(-1 << 63)

// Lease is a time-bounded liveliness assertion for one entity. EndTime and
// ScheduledTime are monotonically non-decreasing between successive
// extensions while the per-lease lock is held by one caller, per spec.md
// section 3's Lease invariant.
type Lease struct {
	mu sync.Mutex

	entityGUID entity.GUID
	kind       entity.Kind
	duration   rtps.Duration // constant; renew() re-derives end = now+duration

	endTime rtps.Time // guarded by mu
	node    *rtps.FibNode[*Lease]
	sched   rtps.Time // guarded by Manager.heapMu; mirrors node's key once scheduled
}

// GUID returns the entity this lease tracks.
func (l *Lease) GUID() entity.GUID { return l.entityGUID }

// Kind returns the entity kind this lease tracks, used by the manager to
// dispatch the correct deletion callback on expiry.
func (l *Lease) Kind() entity.Kind { return l.kind }

// EndTime returns the current expiry deadline under the lease's own lock.
func (l *Lease) EndTime() rtps.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endTime
}
