// Package domain provides the top-level orchestration value threading the
// entity hash, topic-key map, lease manager, and discovery engine through
// every operation a participant/writer/reader needs (spec.md section 4/9's
// "domain" redesign flag: no process-wide singletons, one *Domain value
// per open domain, passed explicitly instead of reached for globally).
//
// Grounded on internal/ghostpool's PoolManager: a single struct composing
// several subsystem managers, constructed once in cmd/ddsnode/main.go and
// handed to every request path instead of resolved from package-level
// state.
package domain

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ocx/ddscore/internal/discovery"
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/ephash"
	"github.com/ocx/ddscore/internal/lease"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rhc"
	"github.com/ocx/ddscore/internal/tkmap"
	"github.com/ocx/ddscore/internal/wire"
	"github.com/ocx/ddscore/internal/whc"
)

// Domain composes every subsystem registry for one open DDS domain. Each
// subsystem already does its own locking; Domain's own mutex only guards
// its participant/entity-id bookkeeping.
type Domain struct {
	DomainID int

	Hash      *ephash.Hash
	Tk        *tkmap.Map
	Leases    *lease.Manager
	Discovery *discovery.Engine
	Metrics   *Metrics

	logger *slog.Logger

	mu           sync.Mutex
	prefix       entity.GUIDPrefix
	participants map[entity.GUID]*Participant
	nextEntity   uint32
}

// New constructs a domain's registries for the participant identified by
// prefix, and wires the lease manager's Deleter/PrivilegedLookup
// dependency back onto the domain itself via lease.NewManager(d, d, ...).
func New(domainID int, prefix entity.GUIDPrefix, logger *slog.Logger) *Domain {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Domain{
		DomainID:     domainID,
		prefix:       prefix,
		Hash:         ephash.New(),
		Tk:           tkmap.New(),
		Metrics:      NewMetrics(),
		logger:       logger,
		participants: make(map[entity.GUID]*Participant),
	}
	d.Leases = lease.NewManager(d, d, logger)
	d.Leases.OnExpire(func(kind entity.Kind) { d.Metrics.RecordLeaseExpired(kind.String()) })
	d.Leases.OnRescue(d.Metrics.RecordLeaseRescued)
	d.Discovery = discovery.New(d.Hash, d.Tk, d.Leases, logger)
	d.Discovery.OnMatchCountChange(d.recomputeMatchCount)
	return d
}

// Participant is the local root entity owning a set of writers/readers,
// its own liveliness lease, and the address set peers use to reach it
// (spec.md section 3 "Participant").
type Participant struct {
	Guid       entity.GUID
	DefaultQoS qos.QoS
	Addresses  []wire.Locator

	lease *lease.Lease

	mu         sync.Mutex
	writers    map[entity.GUID]*Writer
	readers    map[entity.GUID]*Reader
	matchCount int
}

func (p *Participant) GUID() entity.GUID { return p.Guid }
func (p *Participant) Kind() entity.Kind { return entity.KindParticipant }

// MatchCount reports the number of matched remote endpoints, per spec.md
// data-model invariant 4 (approximated as "any matched endpoint" rather
// than full per-remote-participant expected-kind accounting, since the
// expected kind set is an application-level declaration outside this
// core's scope; see DESIGN.md).
func (p *Participant) MatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matchCount
}

// Writers returns a snapshot of this participant's local writers, for the
// debug monitor's dump.
func (p *Participant) Writers() []*Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Writer, 0, len(p.writers))
	for _, w := range p.writers {
		out = append(out, w)
	}
	return out
}

// Readers returns a snapshot of this participant's local readers, for the
// debug monitor's dump.
func (p *Participant) Readers() []*Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Reader, 0, len(p.readers))
	for _, r := range p.readers {
		out = append(out, r)
	}
	return out
}

// Writer is a local typed endpoint whose immutable identity (GUID, topic,
// type) never changes after creation; its WHC and QoS snapshot do.
type Writer struct {
	Guid  entity.GUID
	Topic string
	Type  string
	q     qos.QoS
	Whc   *whc.Cache

	mu      sync.Mutex
	matched map[entity.GUID][]wire.Locator
}

func (w *Writer) GUID() entity.GUID { return w.Guid }
func (w *Writer) Kind() entity.Kind { return entity.KindWriter }
func (w *Writer) TopicName() string { return w.Topic }
func (w *Writer) TypeName() string  { return w.Type }
func (w *Writer) QoS() qos.QoS      { return w.q }

// MatchProxyReader implements discovery.LocalWriter: it registers the
// newly matched proxy reader with the WHC so heartbeats/retransmits
// address it, mirroring q_entity.c's writer_add_connection.
func (w *Writer) MatchProxyReader(proxyGUID entity.GUID, addrs []wire.Locator) {
	w.mu.Lock()
	w.matched[proxyGUID] = addrs
	w.mu.Unlock()
	w.Whc.AddReader(proxyGUID, w.q.Reliability.Kind == qos.Reliable)
}

// UnmatchProxyReader implements discovery.LocalWriter.
func (w *Writer) UnmatchProxyReader(proxyGUID entity.GUID) {
	w.mu.Lock()
	delete(w.matched, proxyGUID)
	w.mu.Unlock()
	w.Whc.RemoveReader(proxyGUID)
}

// Addresses returns the address sets of every currently matched proxy
// reader, for the transmit path.
func (w *Writer) Addresses() map[entity.GUID][]wire.Locator {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[entity.GUID][]wire.Locator, len(w.matched))
	for g, a := range w.matched {
		out[g] = a
	}
	return out
}

// MatchedCount returns the number of currently matched proxy readers.
func (w *Writer) MatchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.matched)
}

// Reader is a local typed endpoint backed by an RHC.
type Reader struct {
	Guid  entity.GUID
	Topic string
	Type  string
	q     qos.QoS
	Rhc   *rhc.Cache

	// outOfSync is set by DeleteReader per the resolved "asynchronous/
	// eventual" open question (SPEC_FULL.md section 13): further delivery
	// attempts for this reader are dropped once set, without notifying
	// the writer side synchronously.
	outOfSync atomic.Bool

	mu      sync.Mutex
	matched map[entity.GUID][]wire.Locator
}

func (r *Reader) GUID() entity.GUID { return r.Guid }
func (r *Reader) Kind() entity.Kind { return entity.KindReader }
func (r *Reader) TopicName() string { return r.Topic }
func (r *Reader) TypeName() string  { return r.Type }
func (r *Reader) QoS() qos.QoS      { return r.q }

// MatchProxyWriter implements discovery.LocalReader.
func (r *Reader) MatchProxyWriter(proxyGUID entity.GUID, addrs []wire.Locator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched[proxyGUID] = addrs
}

// UnmatchProxyWriter implements discovery.LocalReader.
func (r *Reader) UnmatchProxyWriter(proxyGUID entity.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matched, proxyGUID)
}

// MatchedCount returns the number of currently matched proxy writers.
func (r *Reader) MatchedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matched)
}

// OutOfSync reports whether DeleteReader has marked this reader
// unreachable, per the eventual-unmatch redesign decision.
func (r *Reader) OutOfSync() bool { return r.outOfSync.Load() }

// recomputeMatchCount is invoked by discovery whenever a local endpoint's
// match set may have changed.
func (d *Domain) recomputeMatchCount(prefix entity.GUIDPrefix) {
	d.mu.Lock()
	pg := entity.GUID{Prefix: prefix, EntID: entity.EntityIDParticipant}
	p, ok := d.participants[pg]
	d.mu.Unlock()
	if !ok {
		return
	}

	p.mu.Lock()
	count := 0
	for _, w := range p.writers {
		n := w.MatchedCount()
		count += n
		d.Metrics.RecordMatchCount(w.Guid.String(), "writer", n)
	}
	for _, r := range p.readers {
		n := r.MatchedCount()
		count += n
		d.Metrics.RecordMatchCount(r.Guid.String(), "reader", n)
	}
	p.matchCount = count
	p.mu.Unlock()
}

// nextEntityID allocates the next entity id suffix within this domain's
// one local participant prefix, reserving the low byte's discriminator
// bits the way Cyclone's entity id allocator reserves built-in-kind bits
// (0xc2/0xc7 suffixes are never handed out here since those are reserved
// for the built-in discovery endpoints).
func (d *Domain) nextEntityID() entity.EntityID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextEntity++
	for byte(d.nextEntity)&0xc0 == 0xc0 {
		d.nextEntity++
	}
	n := d.nextEntity
	return entity.EntityID{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}
