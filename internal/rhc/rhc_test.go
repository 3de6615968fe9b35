package rhc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
)

func keepLast(depth int) qos.QoS {
	q := qos.Default()
	q.History = qos.History{Kind: qos.KeepLast, Depth: depth}
	return q
}

func TestStoreThenReadReturnsSampleAndMarksRead(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "payload-1", entity.GUID{}, rtps.Time(1))

	loan := c.Read(10, AnyMask, entity.NilHandle)
	require.Len(t, loan.Samples, 1)
	assert.Equal(t, "payload-1", loan.Samples[0].Data)
	assert.Equal(t, Read, loan.Samples[0].SampleState())

	// a second read with NotRead-only mask must now find nothing.
	loan2 := c.Read(10, Mask{Sample: NotRead, View: AnyViewState, Instance: AnyInstanceState}, entity.NilHandle)
	assert.Empty(t, loan2.Samples)
}

func TestTakeRemovesSamplesFromCache(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "a", entity.GUID{}, rtps.Time(1))
	c.Store("k1", entity.InstanceHandle(1), "b", entity.GUID{}, rtps.Time(2))

	loan := c.Take(10, AnyMask, entity.NilHandle)
	require.Len(t, loan.Samples, 2)
	assert.Equal(t, 0, c.Len())

	loan2 := c.Take(10, AnyMask, entity.NilHandle)
	assert.Empty(t, loan2.Samples)
}

func TestKeepLastEvictsOldestSample(t *testing.T) {
	c := New(nil, keepLast(2))
	c.Store("k1", entity.InstanceHandle(1), "a", entity.GUID{}, rtps.Time(1))
	c.Store("k1", entity.InstanceHandle(1), "b", entity.GUID{}, rtps.Time(2))
	c.Store("k1", entity.InstanceHandle(1), "c", entity.GUID{}, rtps.Time(3))

	loan := c.Read(10, AnyMask, entity.NilHandle)
	require.Len(t, loan.Samples, 2)
	assert.Equal(t, "b", loan.Samples[0].Data)
	assert.Equal(t, "c", loan.Samples[1].Data)
}

func TestFirstSampleOfInstanceHasNewView(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "a", entity.GUID{}, rtps.Time(1))
	c.Store("k1", entity.InstanceHandle(1), "b", entity.GUID{}, rtps.Time(2))

	loan := c.Read(10, AnyMask, entity.NilHandle)
	require.Len(t, loan.Samples, 2)
	assert.Equal(t, NewView, loan.Samples[0].ViewState())
	assert.Equal(t, NotNewView, loan.Samples[1].ViewState())
}

func TestNotifyDisposeTransitionsInstanceState(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "a", entity.GUID{}, rtps.Time(1))
	c.NotifyDispose("k1", entity.GUID{}, rtps.Time(2))

	loan := c.Read(10, AnyMask, entity.NilHandle)
	require.Len(t, loan.Samples, 2)
	assert.Equal(t, Alive, loan.Samples[0].InstanceState())
	assert.Equal(t, NotAliveDisposed, loan.Samples[1].InstanceState())
}

func TestReadByInstanceHandleFiltersOtherInstances(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "a", entity.GUID{}, rtps.Time(1))
	c.Store("k2", entity.InstanceHandle(2), "b", entity.GUID{}, rtps.Time(1))

	loan := c.Read(10, AnyMask, entity.InstanceHandle(2))
	require.Len(t, loan.Samples, 1)
	assert.Equal(t, "b", loan.Samples[0].Data)
}

func TestQueryConditionFiltersByPredicate(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), 10, entity.GUID{}, rtps.Time(1))
	c.Store("k1", entity.InstanceHandle(1), 20, entity.GUID{}, rtps.Time(2))

	cond := Condition{
		Mask:   AnyMask,
		Filter: func(data any) bool { return data.(int) > 15 },
	}
	loan := c.ReadWithCondition(10, cond, entity.NilHandle)
	require.Len(t, loan.Samples, 1)
	assert.Equal(t, 20, loan.Samples[0].Data)
}

func TestRoundRobinCursorAdvancesAcrossCalls(t *testing.T) {
	c := New(nil, keepLast(10))
	c.Store("k1", entity.InstanceHandle(1), "a1", entity.GUID{}, rtps.Time(1))
	c.Store("k2", entity.InstanceHandle(2), "b1", entity.GUID{}, rtps.Time(1))

	first := c.Read(1, AnyMask, entity.NilHandle)
	require.Len(t, first.Samples, 1)
	second := c.Read(1, AnyMask, entity.NilHandle)
	require.Len(t, second.Samples, 1)

	assert.NotEqual(t, first.Samples[0].Data, second.Samples[0].Data)
}
