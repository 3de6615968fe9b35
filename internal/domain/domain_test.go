package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rhc"
	"github.com/ocx/ddscore/internal/rtps"
)

func testPrefix(b byte) entity.GUIDPrefix {
	var p entity.GUIDPrefix
	p[0] = b
	return p
}

func TestCreateParticipantRegistersInHash(t *testing.T) {
	d := New(0, testPrefix(1), nil)

	p, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)

	e, ok := d.Hash.Lookup(p.Guid)
	require.True(t, ok)
	assert.Equal(t, entity.KindParticipant, e.Kind())
}

func TestCreateWriterAndReaderMatchAcrossTwoDomains(t *testing.T) {
	pub := New(1, testPrefix(2), nil)
	sub := New(1, testPrefix(3), nil)

	pp, err := pub.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)
	sp, err := sub.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)

	w, err := pub.CreateWriter(pp, "square", "ShapeType", qos.Default())
	require.NoError(t, err)
	r, err := sub.CreateReader(sp, "square", "ShapeType", qos.Default())
	require.NoError(t, err)

	// simulate SEDP exchange bridging the two domains (a real run bridges
	// this over transport/redisdir; in-process wiring is enough to
	// exercise the match engine end to end).
	sub.Discovery.HandleSEDPWriter(w.Guid, w.Topic, w.Type, w.QoS(), nil)
	pub.Discovery.HandleSEDPReader(r.Guid, r.Topic, r.Type, r.QoS(), nil)

	assert.Equal(t, 1, w.MatchedCount())
	assert.Equal(t, 1, r.MatchedCount())
	assert.Equal(t, 1, pp.MatchCount())
	assert.Equal(t, 1, sp.MatchCount())
}

func TestWriteAndDeliverRoundTrip(t *testing.T) {
	d := New(2, testPrefix(4), nil)
	p, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)

	w, err := d.CreateWriter(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)
	r, err := d.CreateReader(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)

	_, err = w.Write([]byte("payload"), rtps.Now(), d)
	require.NoError(t, err)

	d.Deliver(r, []byte("key-0"), "payload", w.Guid, rtps.Now())

	loan := r.Take(10, rhc.AnyMask, entity.NilHandle, d)
	require.Len(t, loan.Samples, 1)
	assert.Equal(t, "payload", loan.Samples[0].Data)
}

func TestDeleteReaderMarksOutOfSyncAndDropsDelivery(t *testing.T) {
	d := New(3, testPrefix(5), nil)
	p, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)
	r, err := d.CreateReader(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)

	d.DeleteReader(r.Guid)
	assert.True(t, r.OutOfSync())

	d.Deliver(r, []byte("key-0"), "payload", entity.GUID{}, rtps.Now())
	assert.Equal(t, 0, r.Rhc.Len())

	_, ok := d.Hash.Lookup(r.Guid)
	assert.False(t, ok)
}

func TestDeleteParticipantCascadesToChildren(t *testing.T) {
	d := New(4, testPrefix(6), nil)
	p, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)
	w, err := d.CreateWriter(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)
	r, err := d.CreateReader(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)

	d.DeleteParticipant(p.Guid)

	_, ok := d.Hash.Lookup(p.Guid)
	assert.False(t, ok)
	_, ok = d.Hash.Lookup(w.Guid)
	assert.False(t, ok)
	_, ok = d.Hash.Lookup(r.Guid)
	assert.False(t, ok)
}
