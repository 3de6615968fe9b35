package lease

import (
	"log/slog"
	"sync"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rtps"
)

// rescueExtension is the 200ms re-arm window from q_lease.c's privileged
// participant rescue (spec.md section 4.B "Edge policy").
const rescueExtension = rtps.Duration(200 * 1_000_000) // 200ms in nanoseconds

// Deleter performs the actual entity teardown once a lease has genuinely
// expired. The manager never imports the entity packages directly (domain,
// ephash, discovery) to keep the dependency edge pointing inward, per
// spec.md section 9's "threading a domain value" redesign flag.
type Deleter interface {
	DeleteParticipant(g entity.GUID)
	DeleteProxyParticipantByGUID(g entity.GUID)
	DeleteWriterNoLinger(g entity.GUID)
	DeleteProxyWriter(g entity.GUID)
	DeleteReader(g entity.GUID)
	DeleteProxyReader(g entity.GUID)
}

// PrivilegedLookup resolves the privileged-participant rescue dependency: a
// proxy participant discovered via a third party (e.g. a cloud discovery
// service) may depend on that third party's own proxy participant for its
// discovery traffic; see spec.md section 4.B and q_lease.c's
// check_and_handle_lease_expiration comment block.
type PrivilegedLookup interface {
	// PrivilegedPPGUID returns the GUID this proxy participant depends on
	// for discovery traffic, and whether such a dependency exists.
	PrivilegedPPGUID(g entity.GUID) (entity.GUID, bool)
	// ProxyParticipantLive reports whether a proxy participant with this
	// GUID is still present (i.e. has not itself been deleted).
	ProxyParticipantLive(g entity.GUID) bool
}

// Manager owns the fibonacci-heap timer queue and drives expiration. One
// Manager exists per domain (see internal/domain), not one per process,
// per spec.md section 9's redesign away from a literal singleton.
type Manager struct {
	heapMu sync.Mutex
	heap   *rtps.FibHeap[*Lease]

	deleter   Deleter
	privLookup PrivilegedLookup

	logger *slog.Logger

	// wakeup is signaled whenever the heap's minimum could have changed, so
	// the GC thread (internal/domain) can re-evaluate its sleep deadline
	// instead of free-running a tight poll loop.
	wakeup chan struct{}

	// onExpire and onRescue let internal/domain record metrics at the exact
	// point of genuine expiry/rescue without this package importing domain.
	onExpire func(entity.Kind)
	onRescue func()
}

// OnExpire registers fn to be called with the entity kind every time a
// lease genuinely expires (after the rescue check, right before deletion).
func (m *Manager) OnExpire(fn func(entity.Kind)) { m.onExpire = fn }

// OnRescue registers fn to be called every time a proxy participant's
// expiry is postponed by the privileged-pp rescue.
func (m *Manager) OnRescue(fn func()) { m.onRescue = fn }

// NewManager constructs a lease manager. deleter and privLookup are
// typically the same *internal/domain.Domain value, which implements both
// interfaces over its ephash registry.
func NewManager(deleter Deleter, privLookup PrivilegedLookup, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		heap:       rtps.NewFibHeap[*Lease](),
		deleter:    deleter,
		privLookup: privLookup,
		logger:     logger,
		wakeup:     make(chan struct{}, 1),
	}
}

// Wakeup returns a channel that receives a value whenever the heap's next
// deadline may have moved; the GC thread selects on it alongside a timer
// for ExpireDue's returned delay.
func (m *Manager) Wakeup() <-chan struct{} { return m.wakeup }

func (m *Manager) forceWakeup() {
	select {
	case m.wakeup <- struct{}{}:
	default:
	}
}

// Create returns a new, not-yet-scheduled lease for entity g of the given
// kind, expiring at endTime unless renewed, with duration used to compute
// the next end time on Renew.
func (m *Manager) Create(g entity.GUID, kind entity.Kind, endTime rtps.Time, duration rtps.Duration) *Lease {
	return &Lease{
		entityGUID: g,
		kind:       kind,
		duration:   duration,
		endTime:    endTime,
		sched:      tschedNotOnHeap,
	}
}

// Register inserts l into the heap if its end time is finite. Mirrors
// q_lease.c's lease_register.
func (m *Manager) Register(l *Lease) {
	m.heapMu.Lock()
	l.mu.Lock()
	if l.endTime != rtps.Never {
		l.sched = l.endTime
		l.node = m.heap.Insert(int64(l.sched), l)
	}
	l.mu.Unlock()
	m.heapMu.Unlock()

	m.forceWakeup()
}

// Renew extends l's end time to now+duration, per spec.md section 4.B:
// only if the new end time is later than the current one AND the lease has
// not already expired. This never touches ScheduledTime directly; the next
// ExpireDue pass re-arms the heap position when it observes the extension.
func (m *Manager) Renew(l *Lease, now rtps.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	newEnd := now.Add(l.duration)
	if newEnd <= l.endTime || now >= l.endTime {
		return
	}
	l.endTime = newEnd
}

// SetExpiry overrides l's end time outright, pulling its scheduled expiry
// forward when when is earlier, so a lease can be forced to expire without
// waiting for the lease interval to elapse naturally.
func (m *Manager) SetExpiry(l *Lease, when rtps.Time) {
	m.heapMu.Lock()
	l.mu.Lock()
	l.endTime = when
	trigger := false
	if when < l.sched {
		l.sched = when
		if l.node != nil {
			m.heap.DecreaseKey(l.node, int64(when))
		}
		trigger = true
	} else if l.sched == tschedNotOnHeap && when != rtps.Never {
		l.sched = when
		l.node = m.heap.Insert(int64(when), l)
		trigger = true
	}
	l.mu.Unlock()
	m.heapMu.Unlock()

	if trigger {
		m.forceWakeup()
	}
}

// Free removes l from the heap (if present) and releases it. Safe to call
// even if l was never registered (endTime == Never).
func (m *Manager) Free(l *Lease) {
	m.heapMu.Lock()
	l.mu.Lock()
	if l.node != nil {
		m.heap.Delete(l.node)
		l.node = nil
	}
	l.sched = tschedNotOnHeap
	l.mu.Unlock()
	m.heapMu.Unlock()

	m.forceWakeup()
}

// ExpireDue pops and processes every lease whose scheduled time is <= now,
// applying the privileged-participant rescue policy, and returns the delay
// until the next minimum (rtps.NeverDuration if the heap is now empty).
// Mirrors q_lease.c's check_and_handle_lease_expiration.
func (m *Manager) ExpireDue(now rtps.Time) rtps.Duration {
	for {
		m.heapMu.Lock()
		min := m.heap.Min()
		if min == nil || rtps.Time(min.Key()) > now {
			var delay rtps.Duration
			if min == nil {
				delay = rtps.NeverDuration
			} else {
				delay = rtps.Time(min.Key()).Sub(now)
			}
			m.heapMu.Unlock()
			return delay
		}
		node := m.heap.ExtractMin()
		l := node.Value()
		m.heapMu.Unlock()

		m.processExpired(l, now)
	}
}

func (m *Manager) processExpired(l *Lease, now rtps.Time) {
	l.mu.Lock()
	if now < l.endTime {
		// renewed since it was scheduled: reinsert at the new end time,
		// unless it is now Never (in which case it simply stays off-heap).
		if l.endTime == rtps.Never {
			l.sched = tschedNotOnHeap
			l.mu.Unlock()
			return
		}
		end := l.endTime
		l.sched = end
		l.mu.Unlock()

		m.heapMu.Lock()
		l.mu.Lock()
		l.node = m.heap.Insert(int64(end), l)
		l.mu.Unlock()
		m.heapMu.Unlock()
		return
	}

	g, kind := l.entityGUID, l.kind
	l.mu.Unlock()

	if kind == entity.KindProxyParticipant && m.privLookup != nil {
		if privGUID, ok := m.privLookup.PrivilegedPPGUID(g); ok && m.privLookup.ProxyParticipantLive(privGUID) {
			m.logger.Debug("lease rescue: postponing proxy participant expiry, privileged pp still live",
				"guid", g, "privileged_pp", privGUID)
			rescueAt := now.Add(rescueExtension)
			l.mu.Lock()
			l.endTime = rescueAt
			l.sched = rescueAt
			l.mu.Unlock()

			m.heapMu.Lock()
			l.mu.Lock()
			l.node = m.heap.Insert(int64(rescueAt), l)
			l.mu.Unlock()
			m.heapMu.Unlock()

			if m.onRescue != nil {
				m.onRescue()
			}
			return
		}
	}

	l.mu.Lock()
	l.sched = tschedNotOnHeap
	l.node = nil
	l.mu.Unlock()

	m.logger.Info("lease expired", "guid", g, "kind", kind)
	if m.onExpire != nil {
		m.onExpire(kind)
	}

	if m.deleter == nil {
		return
	}
	switch kind {
	case entity.KindParticipant:
		m.deleter.DeleteParticipant(g)
	case entity.KindProxyParticipant:
		m.deleter.DeleteProxyParticipantByGUID(g)
	case entity.KindWriter:
		m.deleter.DeleteWriterNoLinger(g)
	case entity.KindProxyWriter:
		m.deleter.DeleteProxyWriter(g)
	case entity.KindReader:
		m.deleter.DeleteReader(g)
	case entity.KindProxyReader:
		m.deleter.DeleteProxyReader(g)
	}
}
