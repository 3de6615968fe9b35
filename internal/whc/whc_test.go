package whc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/wire"
)

func keepAll() qos.QoS {
	q := qos.Default()
	q.History = qos.History{Kind: qos.KeepAll}
	return q
}

func reader(n byte) entity.GUID {
	var g entity.GUID
	g.Prefix[0] = n
	return g
}

func TestWriteAssignsIncrementingSequenceNumbers(t *testing.T) {
	c := New(keepAll())
	s1, err := c.Write([]byte("a"), rtps.Time(1))
	require.NoError(t, err)
	s2, err := c.Write([]byte("b"), rtps.Time(2))
	require.NoError(t, err)

	assert.Equal(t, wire.SequenceNumber(1), s1.SN)
	assert.Equal(t, wire.SequenceNumber(2), s2.SN)
}

func TestWriteFailsAtResourceLimitUntilAcked(t *testing.T) {
	q := keepAll()
	q.ResourceLimits.MaxSamples = 2
	c := New(q)

	r1 := reader(1)
	c.AddReader(r1, true)

	_, err := c.Write([]byte("a"), rtps.Time(1))
	require.NoError(t, err)
	_, err = c.Write([]byte("b"), rtps.Time(2))
	require.NoError(t, err)

	_, err = c.Write([]byte("c"), rtps.Time(3))
	assert.ErrorIs(t, err, ErrResourceLimitExceeded)

	// acking both outstanding samples frees room for the next write.
	c.HandleAckNack(r1, &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 3}})
	_, err = c.Write([]byte("c"), rtps.Time(3))
	assert.NoError(t, err)
}

func TestHandleAckNackAdvancesWatermarkAndGCs(t *testing.T) {
	q := keepAll()
	c := New(q)
	r1 := reader(1)
	c.AddReader(r1, true)

	c.Write([]byte("a"), rtps.Time(1))
	c.Write([]byte("b"), rtps.Time(2))
	assert.Equal(t, 2, c.Len())

	c.HandleAckNack(r1, &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 2}})
	assert.Equal(t, 1, c.Len())
}

func TestHandleAckNackReturnsRequestedSamplesForRetransmit(t *testing.T) {
	c := New(keepAll())
	r1 := reader(1)
	c.AddReader(r1, true)

	c.Write([]byte("a"), rtps.Time(1))
	c.Write([]byte("b"), rtps.Time(2))
	c.Write([]byte("c"), rtps.Time(3))

	// reader has base=1 (nothing acked yet) and nacks SN 2 (bit index 1).
	msg := &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 1, Bits: []bool{false, true, false}}}
	retransmit, gaps := c.HandleAckNack(r1, msg)

	require.Len(t, retransmit, 1)
	assert.Equal(t, wire.SequenceNumber(2), retransmit[0].SN)
	assert.Empty(t, gaps)
}

func TestHandleAckNackGapsAlreadyReclaimedSequenceNumbers(t *testing.T) {
	c := New(keepAll())
	r1 := reader(1)
	r2 := reader(2)
	c.AddReader(r1, true)
	c.AddReader(r2, true)

	c.Write([]byte("a"), rtps.Time(1))
	c.Write([]byte("b"), rtps.Time(2))

	// r2 acks everything and r1 acks SN 1, so gc reclaims SN 1; then r1
	// nacks the now-gone SN 1.
	c.HandleAckNack(r2, &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 3}})
	c.HandleAckNack(r1, &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 2}})
	assert.Equal(t, 1, c.Len())

	msg := &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 1, Bits: []bool{true}}}
	retransmit, gaps := c.HandleAckNack(r1, msg)
	assert.Empty(t, retransmit)
	require.Len(t, gaps, 1)
	assert.Equal(t, wire.SequenceNumber(1), gaps[0])
}

func TestRemoveReaderAllowsGcToReclaimItsBacklog(t *testing.T) {
	c := New(keepAll())
	r1 := reader(1)
	r2 := reader(2)
	c.AddReader(r1, true)
	c.AddReader(r2, true)

	c.Write([]byte("a"), rtps.Time(1))
	c.HandleAckNack(r2, &wire.AckNack{ReaderSNState: wire.SequenceNumberSet{Base: 2}})
	assert.Equal(t, 1, c.Len(), "r1 has not acked yet, sample must be retained")

	c.RemoveReader(r1)
	assert.Equal(t, 0, c.Len())
}

func TestHeartbeatReportsFirstAndLastRetainedSequenceNumbers(t *testing.T) {
	c := New(keepAll())
	c.Write([]byte("a"), rtps.Time(1))
	c.Write([]byte("b"), rtps.Time(2))
	c.Write([]byte("c"), rtps.Time(3))

	hb := c.Heartbeat(wire.RawEntityID{}, wire.RawEntityID{}, true)
	assert.Equal(t, wire.SequenceNumber(1), hb.FirstSN)
	assert.Equal(t, wire.SequenceNumber(3), hb.LastSN)
	assert.Equal(t, int32(1), hb.Count)
}

func TestHeartbeatCountIncrementsEachCall(t *testing.T) {
	c := New(keepAll())
	c.Write([]byte("a"), rtps.Time(1))

	hb1 := c.Heartbeat(wire.RawEntityID{}, wire.RawEntityID{}, false)
	hb2 := c.Heartbeat(wire.RawEntityID{}, wire.RawEntityID{}, false)
	assert.Equal(t, hb1.Count+1, hb2.Count)
}

func TestHeartbeatSchedulerBacksOffExponentiallyAndResetsOnAck(t *testing.T) {
	s := NewHeartbeatScheduler(rtps.Millis(100), rtps.Millis(5000))

	now := rtps.Time(0)
	assert.True(t, s.Due(now), "never-sent scheduler is due immediately")

	s.Sent(now)
	assert.False(t, s.Due(now), "just sent, not yet due")
	assert.Equal(t, rtps.Millis(200), s.Interval())

	later := now.Add(rtps.Millis(100))
	assert.True(t, s.Due(later))

	s.Sent(later)
	assert.Equal(t, rtps.Millis(400), s.Interval())

	s.Acked(later)
	assert.Equal(t, rtps.Millis(100), s.Interval())
}

func TestHeartbeatSchedulerIntervalCapsAtCeiling(t *testing.T) {
	s := NewHeartbeatScheduler(rtps.Millis(100), rtps.Millis(500))
	now := rtps.Time(0)
	for i := 0; i < 10; i++ {
		s.Sent(now)
	}
	assert.Equal(t, rtps.Millis(500), s.Interval())
}
