// Package tkmap implements the global topic-key map: a serialized
// instance-key to InstanceHandle registry shared by every reader and
// writer sample path in the domain (spec.md section 4.H), ported from
// Cyclone DDS's src/core/ddsi/src/ddsi_tkmap.c and the calling conventions
// in src/core/ddsc/src/dds_instance.c.
package tkmap

import (
	"sync"
	"sync/atomic"

	"github.com/ocx/ddscore/internal/entity"
)

// Instance is one registered topic instance: its serialized key, a
// key-only sample blob a caller can later decode back into a typed key
// (dds_instance_get_key's topicless-to-sample round trip), and a refcount
// shared by every writer/reader instance that currently holds it live.
type Instance struct {
	Handle entity.InstanceHandle
	Key    string // serialized key, used as the map's identity
	Sample []byte // opaque key-only encoded sample for get_key round trips

	refs atomic.Int32
}

// Refs returns the current reference count, for tests and diagnostics.
func (i *Instance) Refs() int32 { return i.refs.Load() }

// Map is the process-wide (per domain) key-to-handle registry.
type Map struct {
	mu sync.Mutex

	byKey    map[string]*Instance
	byHandle map[entity.InstanceHandle]*Instance

	nextHandle uint64
}

// New constructs an empty topic key map.
func New() *Map {
	return &Map{
		byKey:    make(map[string]*Instance),
		byHandle: make(map[entity.InstanceHandle]*Instance),
	}
}

// Find looks up the instance for a serialized key, taking a reference on
// success. If create is true and no instance exists yet, one is allocated
// with refcount 1 and sample set to keyOnlySample. Mirrors
// ddsi_tkmap_find's (create, alwaysRef) contract, specialized to the
// Register/dispose/unregister call sites which always want a reference.
func (m *Map) Find(key string, keyOnlySample []byte, create bool) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.byKey[key]; ok {
		inst.refs.Add(1)
		return inst, true
	}
	if !create {
		return nil, false
	}

	m.nextHandle++
	inst := &Instance{
		Handle: entity.InstanceHandle(m.nextHandle),
		Key:    key,
		Sample: keyOnlySample,
	}
	inst.refs.Store(1)
	m.byKey[key] = inst
	m.byHandle[inst.Handle] = inst
	return inst, true
}

// FindByID looks up an instance by handle, taking a reference on success.
func (m *Map) FindByID(h entity.InstanceHandle) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.byHandle[h]
	if !ok {
		return nil, false
	}
	inst.refs.Add(1)
	return inst, true
}

// Lookup returns the handle for key without taking a reference, or
// entity.NilHandle if no instance is registered for it. Mirrors
// ddsi_tkmap_lookup, used by dds_lookup_instance which only wants the
// handle, not ownership of a reference.
func (m *Map) Lookup(key string) entity.InstanceHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.byKey[key]; ok {
		return inst.Handle
	}
	return entity.NilHandle
}

// Unref releases one reference taken by Find/FindByID, removing the
// instance once its refcount reaches zero. Mirrors
// ddsi_tkmap_instance_unref.
func (m *Map) Unref(inst *Instance) {
	if inst.refs.Add(-1) > 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// a concurrent Find may have re-referenced the instance between the
	// decrement above and acquiring the map lock; re-check before evicting.
	if inst.refs.Load() > 0 {
		return
	}
	delete(m.byKey, inst.Key)
	delete(m.byHandle, inst.Handle)
}

// Len reports how many distinct instances are currently registered.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
