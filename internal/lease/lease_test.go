package lease

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rtps"
)

type fakeDeleter struct {
	participants       []entity.GUID
	proxyParticipants  []entity.GUID
	writers            []entity.GUID
	proxyWriters       []entity.GUID
	readers            []entity.GUID
	proxyReaders       []entity.GUID
}

func (f *fakeDeleter) DeleteParticipant(g entity.GUID)          { f.participants = append(f.participants, g) }
func (f *fakeDeleter) DeleteProxyParticipantByGUID(g entity.GUID) { f.proxyParticipants = append(f.proxyParticipants, g) }
func (f *fakeDeleter) DeleteWriterNoLinger(g entity.GUID)       { f.writers = append(f.writers, g) }
func (f *fakeDeleter) DeleteProxyWriter(g entity.GUID)          { f.proxyWriters = append(f.proxyWriters, g) }
func (f *fakeDeleter) DeleteReader(g entity.GUID)               { f.readers = append(f.readers, g) }
func (f *fakeDeleter) DeleteProxyReader(g entity.GUID)          { f.proxyReaders = append(f.proxyReaders, g) }

type fakePrivLookup struct {
	privileged map[entity.GUID]entity.GUID
	live       map[entity.GUID]bool
}

func (f *fakePrivLookup) PrivilegedPPGUID(g entity.GUID) (entity.GUID, bool) {
	pg, ok := f.privileged[g]
	return pg, ok
}

func (f *fakePrivLookup) ProxyParticipantLive(g entity.GUID) bool {
	return f.live[g]
}

func guidFor(n byte) entity.GUID {
	var g entity.GUID
	g.Prefix[0] = n
	g.EntID = entity.EntityIDParticipant
	return g
}

func TestManagerExpiresDueLease(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	g := guidFor(1)
	l := m.Create(g, entity.KindWriter, rtps.Time(100), rtps.Millis(1000))
	m.Register(l)

	delay := m.ExpireDue(rtps.Time(50))
	assert.Equal(t, rtps.Duration(50), delay)
	assert.Empty(t, del.writers)

	delay = m.ExpireDue(rtps.Time(100))
	assert.Equal(t, rtps.NeverDuration, delay)
	require.Len(t, del.writers, 1)
	assert.Equal(t, g, del.writers[0])
}

func TestManagerRenewPostponesExpiry(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	g := guidFor(2)
	l := m.Create(g, entity.KindReader, rtps.Time(100), rtps.Millis(1000))
	m.Register(l)

	m.Renew(l, rtps.Time(50))
	assert.Equal(t, rtps.Time(50).Add(rtps.Millis(1000)), l.EndTime())

	// renew after the original deadline should be rejected: lease had
	// already expired by wall-clock time at the renewal attempt.
	l2 := m.Create(guidFor(3), entity.KindReader, rtps.Time(10), rtps.Millis(1000))
	m.Register(l2)
	m.Renew(l2, rtps.Time(20))
	assert.Equal(t, rtps.Time(10), l2.EndTime())
}

func TestManagerRenewBeforeExpireDuePostponesDeletion(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	g := guidFor(4)
	l := m.Create(g, entity.KindWriter, rtps.Time(100), rtps.Duration(1000))
	m.Register(l)

	m.Renew(l, rtps.Time(50))
	require.Equal(t, rtps.Time(1050), l.EndTime())

	delay := m.ExpireDue(rtps.Time(100))
	assert.Equal(t, rtps.Duration(950), delay)
	assert.Empty(t, del.writers)

	delay = m.ExpireDue(rtps.Time(1050))
	assert.Equal(t, rtps.NeverDuration, delay)
	require.Len(t, del.writers, 1)
}

func TestManagerFreeRemovesFromHeap(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	l := m.Create(guidFor(5), entity.KindReader, rtps.Time(100), rtps.Millis(1000))
	m.Register(l)
	m.Free(l)

	delay := m.ExpireDue(rtps.Time(1000))
	assert.Equal(t, rtps.NeverDuration, delay)
	assert.Empty(t, del.readers)
}

func TestManagerSetExpiryForcesEarlyExpiry(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	g := guidFor(6)
	l := m.Create(g, entity.KindReader, rtps.Time(10_000), rtps.Millis(1000))
	m.Register(l)

	m.SetExpiry(l, rtps.Time(5))

	delay := m.ExpireDue(rtps.Time(5))
	assert.Equal(t, rtps.NeverDuration, delay)
	require.Len(t, del.readers, 1)
	assert.Equal(t, g, del.readers[0])
}

func TestManagerPrivilegedParticipantRescue(t *testing.T) {
	del := &fakeDeleter{}
	pp := guidFor(7)
	privileged := guidFor(8)
	lookup := &fakePrivLookup{
		privileged: map[entity.GUID]entity.GUID{pp: privileged},
		live:       map[entity.GUID]bool{privileged: true},
	}
	m := NewManager(del, lookup, nil)

	l := m.Create(pp, entity.KindProxyParticipant, rtps.Time(100), rtps.Millis(1000))
	m.Register(l)

	delay := m.ExpireDue(rtps.Time(100))
	assert.Equal(t, rescueExtension, delay)
	assert.Empty(t, del.proxyParticipants)
	assert.Equal(t, rtps.Time(100).Add(rescueExtension), l.EndTime())

	lookup.live[privileged] = false
	delay = m.ExpireDue(rtps.Time(100).Add(rescueExtension))
	assert.Equal(t, rtps.NeverDuration, delay)
	require.Len(t, del.proxyParticipants, 1)
	assert.Equal(t, pp, del.proxyParticipants[0])
}

func TestManagerNeverExpiringLeaseStaysOffHeap(t *testing.T) {
	del := &fakeDeleter{}
	m := NewManager(del, nil, nil)

	l := m.Create(guidFor(9), entity.KindWriter, rtps.Never, rtps.NeverDuration)
	m.Register(l)

	delay := m.ExpireDue(rtps.Time(1 << 40))
	assert.Equal(t, rtps.NeverDuration, delay)
	assert.Empty(t, del.writers)
}
