// Package rhc implements the reader history cache: per-reader storage of
// received samples grouped by instance, with read/take semantics, sample
// state masks, and read/query conditions (spec.md section 4.E).
//
// Ported from the control flow in dds_read.c's dds_read_impl (the
// read/take/loan dance) and dds_readcond.c's predicate conditions, with
// Cyclone's out-parameter buffer-loan convention replaced by an explicit
// Loan value, per SPEC_FULL.md's redesign away from caller-owned buffers.
package rhc

import (
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/tkmap"
)

// SampleState tells a reader whether a sample has already been read.
type SampleState uint8

const (
	NotRead SampleState = 1 << iota
	Read
)

const AnySampleState = NotRead | Read

// ViewState tells a reader whether this is the first sample it has seen
// for an instance since the instance last transitioned to alive.
type ViewState uint8

const (
	NewView ViewState = 1 << iota
	NotNewView
)

const AnyViewState = NewView | NotNewView

// InstanceState tracks liveliness/disposal of one instance as observed by
// this reader.
type InstanceState uint8

const (
	Alive InstanceState = 1 << iota
	NotAliveDisposed
	NotAliveNoWriters
)

const AnyInstanceState = Alive | NotAliveDisposed | NotAliveNoWriters

// Mask combines sample/view/instance masks into one read/take filter.
type Mask struct {
	Sample   SampleState
	View     ViewState
	Instance InstanceState
}

// AnyMask matches every sample regardless of state.
var AnyMask = Mask{Sample: AnySampleState, View: AnyViewState, Instance: AnyInstanceState}

// Sample is one stored data (or dispose/unregister) change.
type Sample struct {
	Data            any
	Handle          entity.InstanceHandle
	WriterGUID      entity.GUID
	SourceTimestamp rtps.Time

	sampleState SampleState
	viewState   ViewState
	instState   InstanceState
	disposeGen  uint32
	noWritersGen uint32
}

// SampleState, ViewState and InstanceState expose the sample's current
// flags to callers building a Condition predicate.
func (s *Sample) SampleState() SampleState     { return s.sampleState }
func (s *Sample) ViewState() ViewState         { return s.viewState }
func (s *Sample) InstanceState() InstanceState { return s.instState }

// Loan is the set of samples returned by Read/Take; the caller passes it
// to Return when done, which only drops the loan's references.
// This replaces Cyclone's mutable rd->m_loan_out flag with an explicit
// value, per SPEC_FULL.md's redesign flags.
type Loan struct {
	Samples []*Sample
}

// Return releases the loan. For Read (non-destructive), returning a loan
// is advisory bookkeeping only; for Take the samples are already gone
// from the cache by the time the loan is handed out.
func (l *Loan) Return() { l.Samples = nil }

type instance struct {
	key    string
	handle entity.InstanceHandle

	samples []*Sample // oldest first

	viewState    ViewState
	instState    InstanceState
	writerCount  int
	disposeGen   uint32
	noWritersGen uint32
}

// Cache is one reader's history: instances keyed by topic key, each
// holding up to QoS History.Depth samples (KeepLast) or unbounded
// (KeepAll; ResourceLimits are not applied by this cache).
type Cache struct {
	tk  *tkmap.Map
	qos qos.QoS

	instances map[string]*instance
	// cursor is the round-robin position for fairness across instances on
	// successive Read/Take calls with no instance handle filter, mirroring
	// the C implementation's per-call resumption point so no instance
	// starves under a tight reader loop.
	order  []string
	cursor int

	totalSamples int
}

// New constructs an empty reader cache governed by q.
func New(tk *tkmap.Map, q qos.QoS) *Cache {
	return &Cache{tk: tk, qos: q, instances: make(map[string]*instance)}
}

func (c *Cache) instanceFor(key string, handle entity.InstanceHandle, create bool) *instance {
	inst, ok := c.instances[key]
	if ok {
		return inst
	}
	if !create {
		return nil
	}
	inst = &instance{key: key, handle: handle, viewState: NewView, instState: Alive}
	c.instances[key] = inst
	c.order = append(c.order, key)
	return inst
}

// Store inserts a received sample into its instance's history, evicting
// the oldest sample first under KeepLast once Depth is reached. writerGUID
// and sourceTimestamp are recorded on the sample for destination-order and
// ownership bookkeeping performed by the caller (internal/domain).
func (c *Cache) Store(key string, handle entity.InstanceHandle, data any, writerGUID entity.GUID, ts rtps.Time) {
	inst := c.instanceFor(key, handle, true)

	if inst.instState != Alive {
		inst.viewState = NewView
		inst.instState = Alive
	} else if len(inst.samples) > 0 {
		inst.viewState = NotNewView
	}

	s := &Sample{
		Data:            data,
		Handle:          handle,
		WriterGUID:      writerGUID,
		SourceTimestamp: ts,
		sampleState:     NotRead,
		viewState:       inst.viewState,
		instState:       inst.instState,
		disposeGen:      inst.disposeGen,
		noWritersGen:    inst.noWritersGen,
	}
	inst.samples = append(inst.samples, s)
	c.totalSamples++

	if c.qos.History.Kind == qos.KeepLast && c.qos.History.Depth > 0 {
		for len(inst.samples) > c.qos.History.Depth {
			inst.samples = inst.samples[1:]
			c.totalSamples--
		}
	}
}

// NotifyDispose marks the instance for key as disposed, recording a
// sentinel sample so a reader observes the state transition even with no
// further data, the way Cyclone's RHC inserts a dispose "sample" with no
// payload.
func (c *Cache) NotifyDispose(key string, writerGUID entity.GUID, ts rtps.Time) {
	inst := c.instanceFor(key, entity.NilHandle, true)
	inst.instState = NotAliveDisposed
	inst.disposeGen++
	s := &Sample{
		Handle:       inst.handle,
		WriterGUID:   writerGUID,
		SourceTimestamp: ts,
		sampleState:  NotRead,
		viewState:    inst.viewState,
		instState:    inst.instState,
		disposeGen:   inst.disposeGen,
		noWritersGen: inst.noWritersGen,
	}
	inst.samples = append(inst.samples, s)
	c.totalSamples++
}

// NotifyNoWriters marks the instance as having no live writers left.
func (c *Cache) NotifyNoWriters(key string) {
	inst, ok := c.instances[key]
	if !ok || inst.instState != Alive {
		return
	}
	inst.instState = NotAliveNoWriters
	inst.noWritersGen++
}

func matches(s *Sample, m Mask) bool {
	return s.sampleState&m.Sample != 0 && s.viewState&m.View != 0 && s.instState&m.Instance != 0
}

// collect walks instances starting at the round-robin cursor, gathering up
// to maxSamples matching samples, optionally restricted to one instance
// handle, optionally filtered further by cond. take removes matched
// samples from the cache instead of just marking them read.
func (c *Cache) collect(maxSamples int, m Mask, handle entity.InstanceHandle, cond func(*Sample) bool, take bool) *Loan {
	loan := &Loan{}
	if len(c.order) == 0 {
		return loan
	}

	visited := 0
	start := c.cursor
	for visited < len(c.order) && len(loan.Samples) < maxSamples {
		idx := (start + visited) % len(c.order)
		visited++
		key := c.order[idx]
		inst, ok := c.instances[key]
		if !ok {
			continue
		}
		if handle != entity.NilHandle && inst.handle != handle {
			continue
		}

		kept := inst.samples[:0:0]
		for _, s := range inst.samples {
			if len(loan.Samples) < maxSamples && matches(s, m) && (cond == nil || cond(s)) {
				loan.Samples = append(loan.Samples, s)
				if take {
					continue // dropped from kept, i.e. removed from the cache
				}
				s.sampleState = Read
				kept = append(kept, s)
			} else {
				kept = append(kept, s)
			}
		}
		if take {
			removed := len(inst.samples) - len(kept)
			c.totalSamples -= removed
			inst.samples = kept
		}
	}
	c.cursor = (start + visited) % len(c.order)
	return loan
}

// Read returns up to maxSamples samples matching m (and, if handle is not
// entity.NilHandle, belonging only to that instance) without removing
// them from the cache, marking each returned sample Read.
func (c *Cache) Read(maxSamples int, m Mask, handle entity.InstanceHandle) *Loan {
	return c.collect(maxSamples, m, handle, nil, false)
}

// Take behaves like Read but removes matched samples from the cache.
func (c *Cache) Take(maxSamples int, m Mask, handle entity.InstanceHandle) *Loan {
	return c.collect(maxSamples, m, handle, nil, true)
}

// Len returns the total number of samples currently stored across all
// instances.
func (c *Cache) Len() int { return c.totalSamples }

// InstanceCount returns the number of distinct instances tracked.
func (c *Cache) InstanceCount() int { return len(c.instances) }
