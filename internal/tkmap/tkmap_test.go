package tkmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCreatesThenFinds(t *testing.T) {
	m := New()

	inst, ok := m.Find("k1", []byte("sample1"), true)
	require.True(t, ok)
	assert.EqualValues(t, 1, inst.Refs())

	again, ok := m.Find("k1", nil, false)
	require.True(t, ok)
	assert.Same(t, inst, again)
	assert.EqualValues(t, 2, inst.Refs())
}

func TestFindWithoutCreateMissesOnUnknownKey(t *testing.T) {
	m := New()
	_, ok := m.Find("missing", nil, false)
	assert.False(t, ok)
}

func TestFindByIDRoundTrips(t *testing.T) {
	m := New()
	inst, _ := m.Find("k2", []byte("s"), true)

	byID, ok := m.FindByID(inst.Handle)
	require.True(t, ok)
	assert.Same(t, inst, byID)
	assert.EqualValues(t, 2, inst.Refs())
}

func TestLookupDoesNotTakeReference(t *testing.T) {
	m := New()
	inst, _ := m.Find("k3", []byte("s"), true)

	h := m.Lookup("k3")
	assert.Equal(t, inst.Handle, h)
	assert.EqualValues(t, 1, inst.Refs())
}

func TestUnrefEvictsAtZero(t *testing.T) {
	m := New()
	inst, _ := m.Find("k4", []byte("s"), true)
	assert.Equal(t, 1, m.Len())

	m.Unref(inst)
	assert.Equal(t, 0, m.Len())

	_, ok := m.Find("k4", nil, false)
	assert.False(t, ok)
}

func TestUnrefKeepsInstanceWhileReferencesRemain(t *testing.T) {
	m := New()
	inst, _ := m.Find("k5", []byte("s"), true)
	m.Find("k5", nil, false) // second ref

	m.Unref(inst)
	assert.Equal(t, 1, m.Len())
	_, ok := m.Find("k5", nil, false)
	assert.True(t, ok)
}
