package ephash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
)

type fakeEntity struct {
	guid entity.GUID
	kind entity.Kind
}

func (f fakeEntity) GUID() entity.GUID { return f.guid }
func (f fakeEntity) Kind() entity.Kind { return f.kind }

func participant(n byte) fakeEntity {
	var g entity.GUID
	g.Prefix[0] = n
	g.EntID = entity.EntityIDParticipant
	return fakeEntity{guid: g, kind: entity.KindParticipant}
}

func writerOf(p fakeEntity, suffix byte) fakeEntity {
	g := p.guid
	g.EntID = entity.EntityID{0, 0, suffix, 0xc2}
	return fakeEntity{guid: g, kind: entity.KindWriter}
}

func TestHashInsertLookupRemove(t *testing.T) {
	h := New()
	p := participant(1)

	require.NoError(t, h.Insert(p))
	got, ok := h.Lookup(p.guid)
	require.True(t, ok)
	assert.Equal(t, p, got)

	removed, ok := h.Remove(p.guid)
	require.True(t, ok)
	assert.Equal(t, p, removed)

	_, ok = h.Lookup(p.guid)
	assert.False(t, ok)
}

func TestHashInsertDuplicateFails(t *testing.T) {
	h := New()
	p := participant(2)
	require.NoError(t, h.Insert(p))
	err := h.Insert(p)
	require.Error(t, err)
	assert.Equal(t, entity.BadParameter, entity.CodeOf(err))
}

func TestHashEnumByKind(t *testing.T) {
	h := New()
	p1, p2 := participant(3), participant(4)
	require.NoError(t, h.Insert(p1))
	require.NoError(t, h.Insert(p2))

	w := writerOf(p1, 1)
	require.NoError(t, h.Insert(w))

	parts := h.EnumParticipants()
	assert.Len(t, parts, 2)

	writers := h.EnumWriters()
	require.Len(t, writers, 1)
	assert.Equal(t, w, writers[0])
}

func TestHashEnumChildrenExcludesParticipantItself(t *testing.T) {
	h := New()
	p := participant(5)
	require.NoError(t, h.Insert(p))

	w1 := writerOf(p, 1)
	w2 := writerOf(p, 2)
	require.NoError(t, h.Insert(w1))
	require.NoError(t, h.Insert(w2))

	children := h.EnumChildren(p.guid.Prefix)
	assert.Len(t, children, 2)

	removed, ok := h.Remove(p.guid)
	require.True(t, ok)
	assert.Equal(t, p, removed)

	children = h.EnumChildren(p.guid.Prefix)
	assert.Len(t, children, 2, "removing the participant must not disturb its children's index entries")
}

func TestHashMetricsTrackInsertRemove(t *testing.T) {
	h := New()
	p := participant(6)
	require.NoError(t, h.Insert(p))
	assert.EqualValues(t, 1, h.Metrics().Participants.Load())

	h.Remove(p.guid)
	assert.EqualValues(t, 0, h.Metrics().Participants.Load())
}

func TestHashLen(t *testing.T) {
	h := New()
	assert.Equal(t, 0, h.Len())
	require.NoError(t, h.Insert(participant(7)))
	assert.Equal(t, 1, h.Len())
}
