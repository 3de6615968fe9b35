package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/ephash"
	"github.com/ocx/ddscore/internal/lease"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/wire"
)

type fakeLocalWriter struct {
	guid      entity.GUID
	topic     string
	typeName  string
	qos       qos.QoS
	matched   []entity.GUID
	unmatched []entity.GUID
}

func (w *fakeLocalWriter) GUID() entity.GUID     { return w.guid }
func (w *fakeLocalWriter) TopicName() string     { return w.topic }
func (w *fakeLocalWriter) TypeName() string      { return w.typeName }
func (w *fakeLocalWriter) QoS() qos.QoS          { return w.qos }
func (w *fakeLocalWriter) MatchProxyReader(g entity.GUID, addrs []wire.Locator) {
	w.matched = append(w.matched, g)
}
func (w *fakeLocalWriter) UnmatchProxyReader(g entity.GUID) {
	w.unmatched = append(w.unmatched, g)
}

type fakeLocalReader struct {
	guid      entity.GUID
	topic     string
	typeName  string
	qos       qos.QoS
	matched   []entity.GUID
	unmatched []entity.GUID
}

func (r *fakeLocalReader) GUID() entity.GUID     { return r.guid }
func (r *fakeLocalReader) TopicName() string     { return r.topic }
func (r *fakeLocalReader) TypeName() string      { return r.typeName }
func (r *fakeLocalReader) QoS() qos.QoS          { return r.qos }
func (r *fakeLocalReader) MatchProxyWriter(g entity.GUID, addrs []wire.Locator) {
	r.matched = append(r.matched, g)
}
func (r *fakeLocalReader) UnmatchProxyWriter(g entity.GUID) {
	r.unmatched = append(r.unmatched, g)
}

func writerGUID(n byte) entity.GUID {
	var g entity.GUID
	g.Prefix[0] = n
	g.EntID = entity.EntityID{0, 0, 1, 0x03}
	return g
}

func readerGUID(n byte) entity.GUID {
	var g entity.GUID
	g.Prefix[0] = n
	g.EntID = entity.EntityID{0, 0, 1, 0x04}
	return g
}

func TestHandleSEDPWriterMatchesCompatibleLocalReader(t *testing.T) {
	hash := ephash.New()
	e := New(hash, nil, nil, nil)

	r := &fakeLocalReader{guid: readerGUID(1), topic: "square", typeName: "ShapeType", qos: qos.Default()}
	e.RegisterLocalReader(r)

	pw := e.HandleSEDPWriter(writerGUID(2), "square", "ShapeType", qos.Default(), []wire.Locator{{Kind: wire.LocatorKindUDPv4, Port: 7400}})
	require.NotNil(t, pw)
	require.Len(t, r.matched, 1)
	assert.Equal(t, writerGUID(2), r.matched[0])

	matched := e.MatchedWriters(r.GUID())
	require.Len(t, matched, 1)
	assert.Equal(t, "square", matched[0].TopicName)
}

func TestHandleSEDPReaderMatchesCompatibleLocalWriter(t *testing.T) {
	hash := ephash.New()
	e := New(hash, nil, nil, nil)

	w := &fakeLocalWriter{guid: writerGUID(3), topic: "circle", typeName: "ShapeType", qos: qos.Default()}
	e.RegisterLocalWriter(w)

	pr := e.HandleSEDPReader(readerGUID(4), "circle", "ShapeType", qos.Default(), nil)
	require.NotNil(t, pr)
	require.Len(t, w.matched, 1)
	assert.Equal(t, readerGUID(4), w.matched[0])
}

func TestTopicMismatchDoesNotMatch(t *testing.T) {
	hash := ephash.New()
	e := New(hash, nil, nil, nil)

	r := &fakeLocalReader{guid: readerGUID(5), topic: "square", typeName: "ShapeType", qos: qos.Default()}
	e.RegisterLocalReader(r)

	e.HandleSEDPWriter(writerGUID(6), "triangle", "ShapeType", qos.Default(), nil)
	assert.Empty(t, r.matched)
}

func TestUnregisterLocalWriterUnmatchesPeers(t *testing.T) {
	hash := ephash.New()
	e := New(hash, nil, nil, nil)

	w := &fakeLocalWriter{guid: writerGUID(7), topic: "square", typeName: "ShapeType", qos: qos.Default()}
	e.RegisterLocalWriter(w)
	e.HandleSEDPReader(readerGUID(8), "square", "ShapeType", qos.Default(), nil)
	require.Len(t, w.matched, 1)

	e.UnregisterLocalWriter(w.GUID())
	require.Len(t, w.unmatched, 1)
	assert.Equal(t, readerGUID(8), w.unmatched[0])
}

func TestQoSBecomingIncompatibleUnmatches(t *testing.T) {
	hash := ephash.New()
	e := New(hash, nil, nil, nil)

	r := &fakeLocalReader{guid: readerGUID(9), topic: "square", typeName: "ShapeType", qos: qos.Default()}
	e.RegisterLocalReader(r)

	reader := qos.Default()
	reader.Durability = qos.TransientLocal
	r.qos = reader
	e.HandleSEDPWriter(writerGUID(10), "square", "ShapeType", reader, nil)
	require.Len(t, r.matched, 1)

	e.HandleSEDPWriter(writerGUID(10), "square", "ShapeType", qos.Default(), nil)
	require.Len(t, r.unmatched, 1)
}

func TestHandleSPDPFirstSightCreatesParticipantAndSubsequentRenews(t *testing.T) {
	hash := ephash.New()
	del := &stubDeleter{}
	m := lease.NewManager(del, nil, nil)
	e := New(hash, nil, m, nil)

	var prefix entity.GUIDPrefix
	prefix[0] = 11

	pp := e.HandleSPDP(prefix, nil, "DDSPerf:node1", rtps.Millis(1000), rtps.Time(0))
	require.NotNil(t, pp)

	again := e.HandleSPDP(prefix, nil, "DDSPerf:node1", rtps.Millis(1000), rtps.Time(10))
	assert.Same(t, pp, again)
}

func TestHandlePMDDisposeDeletesImmediately(t *testing.T) {
	hash := ephash.New()
	del := &stubDeleter{}
	m := lease.NewManager(del, nil, nil)
	e := New(hash, nil, m, nil)

	var prefix entity.GUIDPrefix
	prefix[0] = 12
	e.HandleSPDP(prefix, nil, "", rtps.Millis(1000), rtps.Time(0))

	guid := entity.GUID{Prefix: prefix, EntID: entity.EntityIDParticipant}
	_, ok := e.ProxyParticipantByGUID(guid)
	require.True(t, ok)

	e.HandlePMD(prefix, PMDDisposed, rtps.Time(5))
	_, ok = e.ProxyParticipantByGUID(guid)
	assert.False(t, ok)
}

type stubDeleter struct{}

func (s *stubDeleter) DeleteParticipant(g entity.GUID)            {}
func (s *stubDeleter) DeleteProxyParticipantByGUID(g entity.GUID) {}
func (s *stubDeleter) DeleteWriterNoLinger(g entity.GUID)         {}
func (s *stubDeleter) DeleteProxyWriter(g entity.GUID)            {}
func (s *stubDeleter) DeleteReader(g entity.GUID)                 {}
func (s *stubDeleter) DeleteProxyReader(g entity.GUID)            {}
