// Package whc implements the writer history cache: per-writer storage of
// unacknowledged samples keyed by sequence number, reader-proxy
// acknowledgement tracking, retransmit selection from ACKNACK, and
// resource-limit-driven garbage collection (spec.md section 4.F).
//
// The sample store and reader-proxy bookkeeping are grounded on Cyclone's
// whc_default.c contract (insert at next sequence number, gc on every
// acked reader advancing, retransmit/gap split on ACKNACK). The heartbeat
// backoff scheduler in heartbeat.go is grounded on the generation/expiry
// state-machine shape of internal/circuitbreaker's CircuitBreaker, adapted
// from "trip on failure, half-open after timeout" to "grow the heartbeat
// interval while unacked, reset to the floor on ack".
package whc

import (
	"log"
	"os"
	"sync"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/wire"
)

// ErrResourceLimitExceeded is returned by Write when the cache is at its
// high-water mark and no sample can be reclaimed because every retained
// sample is still unacknowledged by some reliable reader.
var ErrResourceLimitExceeded = entity.BadParameter.Wrap("whc: resource limit exceeded", nil)

// Sample is one historical writer sample, addressable by sequence number.
type Sample struct {
	SN        wire.SequenceNumber
	Data      []byte
	Timestamp rtps.Time
	Disposed  bool
}

// readerProxy tracks one matched reader's acknowledgement state, the way
// Cyclone's whc_default.c tracks a per-proxy-reader "last acked" sequence
// number plus an explicit nack set.
type readerProxy struct {
	guid      entity.GUID
	reliable  bool
	ackedUpTo wire.SequenceNumber // samples with SN < ackedUpTo are acked
	nacked    map[wire.SequenceNumber]bool
}

// Cache is one writer's history cache.
type Cache struct {
	mu sync.Mutex

	qos     qos.QoS
	samples []*Sample // ascending SN, oldest first
	nextSN  wire.SequenceNumber

	readers map[entity.GUID]*readerProxy

	heartbeatCount int32
	logger         *log.Logger
}

// New constructs an empty writer history cache governed by q. Sequence
// numbers start at 1, matching RTPS's reserved-zero convention.
func New(q qos.QoS) *Cache {
	return &Cache{
		qos:     q,
		nextSN:  1,
		readers: make(map[entity.GUID]*readerProxy),
		logger:  log.New(os.Stderr, "[whc] ", log.LstdFlags),
	}
}

// AddReader registers a matched reader proxy. A reliable reader's
// unacknowledged samples are what keep this cache from shrinking below its
// high-water mark; a best-effort reader is never consulted by gc.
func (c *Cache) AddReader(guid entity.GUID, reliable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readers[guid] = &readerProxy{
		guid:      guid,
		reliable:  reliable,
		ackedUpTo: c.nextSN,
		nacked:    make(map[wire.SequenceNumber]bool),
	}
}

// RemoveReader drops a reader proxy, e.g. once the matched proxy reader is
// deleted. A subsequent gc can now reclaim samples that were only held back
// for this reader.
func (c *Cache) RemoveReader(guid entity.GUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readers, guid)
	c.gcLocked()
}

// Write appends data as a new sample at the next sequence number, running
// gc first to make room under the resource limit. It fails with
// ErrResourceLimitExceeded if the cache is already at MaxSamples and no
// sample can be reclaimed. It returns at once in that case; it does not
// block waiting for acknowledgements.
func (c *Cache) Write(data []byte, ts rtps.Time) (*Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.qos.ResourceLimits.MaxSamples
	if limit > 0 && len(c.samples) >= limit {
		c.gcLocked()
		if len(c.samples) >= limit {
			return nil, ErrResourceLimitExceeded
		}
	}

	s := &Sample{SN: c.nextSN, Data: data, Timestamp: ts}
	c.nextSN++
	c.samples = append(c.samples, s)
	return s, nil
}

// WriteDispose behaves like Write but marks the sample as a dispose, for
// callers needing to retransmit dispose notifications to late-joining or
// lagging readers the same way as ordinary data.
func (c *Cache) WriteDispose(ts rtps.Time) (*Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Sample{SN: c.nextSN, Timestamp: ts, Disposed: true}
	c.nextSN++
	c.samples = append(c.samples, s)
	return s, nil
}

// minAckedUpTo returns the lowest ackedUpTo across every reliable reader, or
// c.nextSN if there are none (nothing is held back).
func (c *Cache) minAckedUpTo() wire.SequenceNumber {
	min := c.nextSN
	any := false
	for _, rp := range c.readers {
		if !rp.reliable {
			continue
		}
		any = true
		if rp.ackedUpTo < min {
			min = rp.ackedUpTo
		}
	}
	if !any {
		return c.nextSN
	}
	return min
}

// gcLocked drops samples acknowledged by every reliable reader, plus, for
// KeepLast history with no reliable readers at all, trims down to the
// configured depth. Caller must hold c.mu.
func (c *Cache) gcLocked() {
	keepFrom := c.minAckedUpTo()
	i := 0
	for i < len(c.samples) && c.samples[i].SN < keepFrom {
		i++
	}
	if i > 0 {
		c.samples = c.samples[i:]
	}

	if c.qos.History.Kind == qos.KeepLast && c.qos.History.Depth > 0 {
		for len(c.samples) > c.qos.History.Depth && c.fullyAcked(c.samples[0].SN) {
			c.samples = c.samples[1:]
		}
	}
}

func (c *Cache) fullyAcked(sn wire.SequenceNumber) bool {
	for _, rp := range c.readers {
		if rp.reliable && rp.ackedUpTo <= sn {
			return false
		}
	}
	return true
}

// Gc runs garbage collection outside of a Write/HandleAckNack call, e.g. on
// a periodic timer.
func (c *Cache) Gc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gcLocked()
}

// HandleAckNack applies a received ACKNACK from guid: advances that
// reader's acked watermark, records any requested (nacked) sequence
// numbers, and returns the samples to retransmit plus the sequence numbers
// that must be GAPed because they have already been reclaimed.
func (c *Cache) HandleAckNack(guid entity.GUID, msg *wire.AckNack) (retransmit []*Sample, gapSNs []wire.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rp, ok := c.readers[guid]
	if !ok {
		return nil, nil
	}

	base := msg.ReaderSNState.Base
	if base > rp.ackedUpTo {
		rp.ackedUpTo = base
	}

	lowestRetained := wire.SequenceNumber(0)
	if len(c.samples) > 0 {
		lowestRetained = c.samples[0].SN
	}

	for i, present := range msg.ReaderSNState.Bits {
		if !present {
			continue
		}
		sn := base + wire.SequenceNumber(i)
		if sn < lowestRetained {
			gapSNs = append(gapSNs, sn)
			continue
		}
		rp.nacked[sn] = true
	}

	for _, s := range c.samples {
		if rp.nacked[s.SN] {
			retransmit = append(retransmit, s)
			delete(rp.nacked, s.SN)
		}
	}

	c.gcLocked()
	return retransmit, gapSNs
}

// RetransmitCount reports how many sequence numbers are still outstanding
// as nacked-but-not-yet-resent for guid, for monitoring/metrics.
func (c *Cache) RetransmitCount(guid entity.GUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	rp, ok := c.readers[guid]
	if !ok {
		return 0
	}
	return len(rp.nacked)
}

// Heartbeat builds the next Heartbeat submessage describing this writer's
// current sequence number range.
func (c *Cache) Heartbeat(readerID, writerID wire.RawEntityID, final bool) *wire.Heartbeat {
	c.mu.Lock()
	defer c.mu.Unlock()

	first := wire.SequenceNumber(1)
	last := wire.SequenceNumber(0)
	if len(c.samples) > 0 {
		first = c.samples[0].SN
		last = c.samples[len(c.samples)-1].SN
	} else if c.nextSN > 1 {
		first = c.nextSN
		last = c.nextSN - 1
	}

	c.heartbeatCount++
	return &wire.Heartbeat{
		ReaderID:  readerID,
		WriterID:  writerID,
		FirstSN:   first,
		LastSN:    last,
		Count:     c.heartbeatCount,
		FinalFlag: final,
	}
}

// Len returns the number of samples currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// ReaderCount returns the number of registered reader proxies.
func (c *Cache) ReaderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readers)
}
