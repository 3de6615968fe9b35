// Package ephash implements the global entity hash: the concurrent registry
// mapping every GUID known to this process (participants, proxy
// participants, writers, readers, and their proxy counterparts) to its
// entity record, plus the secondary indices the rest of the domain needs
// for enumeration and cascade deletion (spec.md section 4.C).
//
// Adapted from the hub-and-spoke spoke registry pattern: a single
// RWMutex-guarded set of maps with typed secondary indices, atomic
// counters read without holding the lock, and a log.New-style logger.
package ephash

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ocx/ddscore/internal/entity"
)

// Entity is satisfied by every record the hash tracks: participants,
// proxy participants, writers, readers, proxy writers, proxy readers.
// Concrete types live in internal/domain and internal/discovery; this
// package only needs their identity and kind.
type Entity interface {
	GUID() entity.GUID
	Kind() entity.Kind
}

// Metrics counts live entities per kind. Fields are atomic so callers can
// read them without taking the hash's lock.
type Metrics struct {
	Participants      atomic.Int64
	ProxyParticipants atomic.Int64
	Writers           atomic.Int64
	Readers           atomic.Int64
	ProxyWriters      atomic.Int64
	ProxyReaders      atomic.Int64
}

func (m *Metrics) delta(k entity.Kind, n int64) {
	switch k {
	case entity.KindParticipant:
		m.Participants.Add(n)
	case entity.KindProxyParticipant:
		m.ProxyParticipants.Add(n)
	case entity.KindWriter:
		m.Writers.Add(n)
	case entity.KindReader:
		m.Readers.Add(n)
	case entity.KindProxyWriter:
		m.ProxyWriters.Add(n)
	case entity.KindProxyReader:
		m.ProxyReaders.Add(n)
	}
}

// Hash is the global entity registry. One Hash exists per domain (see
// internal/domain), not a process-wide singleton, per SPEC_FULL.md's
// redesign away from global state.
type Hash struct {
	mu sync.RWMutex

	byGUID map[entity.GUID]Entity

	// byKind indexes entities by kind for enumeration (dds_matched.c-style
	// "give me every writer" queries), and byOwner indexes by owning
	// participant prefix for cascade delete when a participant goes away.
	byKind  map[entity.Kind]map[entity.GUID]Entity
	byOwner map[entity.GUIDPrefix]map[entity.GUID]Entity

	metrics Metrics

	logger *log.Logger
}

// New constructs an empty entity hash.
func New() *Hash {
	byKind := make(map[entity.Kind]map[entity.GUID]Entity, 6)
	for _, k := range []entity.Kind{
		entity.KindParticipant, entity.KindProxyParticipant,
		entity.KindWriter, entity.KindReader,
		entity.KindProxyWriter, entity.KindProxyReader,
	} {
		byKind[k] = make(map[entity.GUID]Entity)
	}
	return &Hash{
		byGUID:  make(map[entity.GUID]Entity),
		byKind:  byKind,
		byOwner: make(map[entity.GUIDPrefix]map[entity.GUID]Entity),
		logger:  log.New(os.Stderr, "[ephash] ", log.LstdFlags),
	}
}

// Insert adds e to the hash, indexed by its own GUID and by its owning
// participant's prefix. Returns an error if an entity with the same GUID
// is already registered (GUIDs must be unique within a process).
func (h *Hash) Insert(e Entity) error {
	g := e.GUID()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.byGUID[g]; exists {
		return entity.BadParameter.Wrap(fmt.Sprintf("entity %s already registered", g), nil)
	}

	h.byGUID[g] = e
	h.byKind[e.Kind()][g] = e

	owner := g.Prefix
	if h.byOwner[owner] == nil {
		h.byOwner[owner] = make(map[entity.GUID]Entity)
	}
	h.byOwner[owner][g] = e

	h.metrics.delta(e.Kind(), 1)
	return nil
}

// Remove deletes the entity identified by g, if present, and returns it.
func (h *Hash) Remove(g entity.GUID) (Entity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, exists := h.byGUID[g]
	if !exists {
		return nil, false
	}

	delete(h.byGUID, g)
	delete(h.byKind[e.Kind()], g)
	if owner := h.byOwner[g.Prefix]; owner != nil {
		delete(owner, g)
		if len(owner) == 0 {
			delete(h.byOwner, g.Prefix)
		}
	}

	h.metrics.delta(e.Kind(), -1)
	return e, true
}

// Lookup returns the entity registered under g, if any.
func (h *Hash) Lookup(g entity.GUID) (Entity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.byGUID[g]
	return e, ok
}

// enumKind snapshots every entity of kind k. Returning a fresh slice under
// the read lock means callers never observe a map mutated concurrently.
func (h *Hash) enumKind(k entity.Kind) []Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := h.byKind[k]
	out := make([]Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

func (h *Hash) EnumParticipants() []Entity      { return h.enumKind(entity.KindParticipant) }
func (h *Hash) EnumProxyParticipants() []Entity { return h.enumKind(entity.KindProxyParticipant) }
func (h *Hash) EnumWriters() []Entity           { return h.enumKind(entity.KindWriter) }
func (h *Hash) EnumReaders() []Entity           { return h.enumKind(entity.KindReader) }
func (h *Hash) EnumProxyWriters() []Entity      { return h.enumKind(entity.KindProxyWriter) }
func (h *Hash) EnumProxyReaders() []Entity      { return h.enumKind(entity.KindProxyReader) }

// EnumChildren returns every entity owned by the participant with the
// given GUID prefix, excluding the participant entity itself. Used to
// cascade-delete a participant's writers and readers.
func (h *Hash) EnumChildren(prefix entity.GUIDPrefix) []Entity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m := h.byOwner[prefix]
	out := make([]Entity, 0, len(m))
	for g, e := range m {
		if g.IsParticipant() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Metrics returns the live metrics snapshot. Safe for concurrent use.
func (h *Hash) Metrics() *Metrics { return &h.metrics }

// Len returns the total number of registered entities of any kind.
func (h *Hash) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byGUID)
}
