// Package discovery implements SPDP participant discovery and SEDP
// endpoint discovery (spec.md section 4.G): proxy participant/writer/
// reader records, the built-in-topic plumbing that feeds them, and the
// QoS-compatibility match engine that pairs a local writer with a remote
// proxy reader (or vice versa) and notifies both sides.
//
// Grounded on Cyclone DDS's src/core/ddsi/src/q_sedp.c match-test shape
// (topic name, then type name, then partitions, then per-policy QoS
// compatibility) and src/core/ddsi/src/q_lease.c's privileged-participant
// dependency tracking. The per-match AVL tree keyed by peer GUID
// (q_entity.c's wr->readers / rd->writers) is modeled here as a plain Go
// map, since ephash already gives O(1) average lookup without a C-style
// balanced tree's rebalancing cost.
package discovery

import (
	"log/slog"
	"sync"

	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/ephash"
	"github.com/ocx/ddscore/internal/lease"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/tkmap"
	"github.com/ocx/ddscore/internal/wire"
)

// LocalEndpoint is satisfied by a domain-owned Writer or Reader: the
// identity discovery needs to run a match test, without discovery having
// to import the domain package that owns WHC/RHC storage (see
// SPEC_FULL.md's capability-interface redesign flag; this is how the
// dependency edge stays pointed inward).
type LocalEndpoint interface {
	GUID() entity.GUID
	TopicName() string
	TypeName() string
	QoS() qos.QoS
}

// LocalWriter is a local endpoint that can be told about a newly matched
// or unmatched remote reader.
type LocalWriter interface {
	LocalEndpoint
	MatchProxyReader(proxyGUID entity.GUID, addrs []wire.Locator)
	UnmatchProxyReader(proxyGUID entity.GUID)
}

// LocalReader is the reader-side counterpart of LocalWriter.
type LocalReader interface {
	LocalEndpoint
	MatchProxyWriter(proxyGUID entity.GUID, addrs []wire.Locator)
	UnmatchProxyWriter(proxyGUID entity.GUID)
}

// BuiltinTopicData is the read-only snapshot exposed by MatchedWriters/
// MatchedReaders, modeled on Cyclone's dds_matched.c
// publication/subscription_builtin_topic_data.
type BuiltinTopicData struct {
	GUID      entity.GUID
	TopicName string
	TypeName  string
	QoS       qos.QoS
}

// Engine owns every proxy participant/writer/reader this process has
// discovered, the local-endpoint registrations SEDP must match them
// against, and the match tables themselves. One Engine exists per domain
// (see internal/domain), not a process singleton.
type Engine struct {
	mu sync.Mutex

	hash   *ephash.Hash
	tk     *tkmap.Map
	leases *lease.Manager
	logger *slog.Logger

	participants map[entity.GUID]*ProxyParticipant

	localWriters map[entity.GUID]LocalWriter
	localReaders map[entity.GUID]LocalReader

	proxyWriters map[entity.GUID]*ProxyWriter
	proxyReaders map[entity.GUID]*ProxyReader

	// matchedW[writerGUID][readerGUID] / matchedR[readerGUID][writerGUID]
	// record confirmed pairs so a second SEDP sample for the same proxy
	// (or a QoS-unchanged re-announce) does not re-notify the endpoints.
	matchedW map[entity.GUID]map[entity.GUID]bool // local writer -> proxy readers
	matchedR map[entity.GUID]map[entity.GUID]bool // local reader -> proxy writers

	onMatchCountChange func(participantPrefix entity.GUIDPrefix)
}

// New constructs a discovery engine. leases may be nil in tests that do
// not exercise lease expiry. hash is the process-wide entity directory
// (spec.md section 4.C); every proxy participant/writer/reader discovery
// creates is inserted there too, so the rest of the domain can resolve a
// bare GUID to its entity record the same way it resolves a local one.
func New(hash *ephash.Hash, tk *tkmap.Map, leases *lease.Manager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		hash:         hash,
		tk:           tk,
		leases:       leases,
		logger:       logger,
		participants: make(map[entity.GUID]*ProxyParticipant),
		localWriters: make(map[entity.GUID]LocalWriter),
		localReaders: make(map[entity.GUID]LocalReader),
		proxyWriters: make(map[entity.GUID]*ProxyWriter),
		proxyReaders: make(map[entity.GUID]*ProxyReader),
		matchedW:     make(map[entity.GUID]map[entity.GUID]bool),
		matchedR:     make(map[entity.GUID]map[entity.GUID]bool),
	}
}

// OnMatchCountChange registers a callback invoked whenever a participant's
// matched-endpoint count may have changed, used by internal/domain to
// recompute data-model invariant 4 (matchcount).
func (e *Engine) OnMatchCountChange(fn func(entity.GUIDPrefix)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMatchCountChange = fn
}

func (e *Engine) notifyMatchCount(prefix entity.GUIDPrefix) {
	if e.onMatchCountChange != nil {
		e.onMatchCountChange(prefix)
	}
}

// RegisterLocalWriter makes w visible to the match engine: every currently
// known proxy reader on the same topic is tested immediately, and future
// SEDP arrivals are tested against w too.
func (e *Engine) RegisterLocalWriter(w LocalWriter) {
	e.mu.Lock()
	e.localWriters[w.GUID()] = w
	candidates := make([]*ProxyReader, 0)
	for _, pr := range e.proxyReaders {
		if pr.TopicName == w.TopicName() {
			candidates = append(candidates, pr)
		}
	}
	e.mu.Unlock()

	for _, pr := range candidates {
		e.tryMatchWriterReader(w, pr)
	}
}

// RegisterLocalReader is the reader-side counterpart of RegisterLocalWriter.
func (e *Engine) RegisterLocalReader(r LocalReader) {
	e.mu.Lock()
	e.localReaders[r.GUID()] = r
	candidates := make([]*ProxyWriter, 0)
	for _, pw := range e.proxyWriters {
		if pw.TopicName == r.TopicName() {
			candidates = append(candidates, pw)
		}
	}
	e.mu.Unlock()

	for _, pw := range candidates {
		e.tryMatchReaderWriter(r, pw)
	}
}

// UnregisterLocalWriter removes w and unmatches it from every proxy reader
// it was paired with.
func (e *Engine) UnregisterLocalWriter(g entity.GUID) {
	e.mu.Lock()
	w, ok := e.localWriters[g]
	delete(e.localWriters, g)
	peers := e.matchedW[g]
	delete(e.matchedW, g)
	e.mu.Unlock()

	if !ok {
		return
	}
	for peer := range peers {
		w.UnmatchProxyReader(peer)
	}
	e.notifyMatchCount(g.Prefix)
}

// UnregisterLocalReader is the reader-side counterpart of
// UnregisterLocalWriter.
func (e *Engine) UnregisterLocalReader(g entity.GUID) {
	e.mu.Lock()
	r, ok := e.localReaders[g]
	delete(e.localReaders, g)
	peers := e.matchedR[g]
	delete(e.matchedR, g)
	e.mu.Unlock()

	if !ok {
		return
	}
	for peer := range peers {
		r.UnmatchProxyWriter(peer)
	}
	e.notifyMatchCount(g.Prefix)
}

// compatible implements spec.md data-model invariant 3: topic name, type
// name, partition intersection, then per-policy QoS compatibility.
func compatible(wTopic, wType string, wQoS qos.QoS, rTopic, rType string, rQoS qos.QoS) (bool, string) {
	if wTopic != rTopic {
		return false, "topic name mismatch"
	}
	if wType != rType {
		return false, "type name mismatch"
	}
	if !qos.PartitionsIntersect(wQoS.Partitions, rQoS.Partitions) {
		return false, "disjoint partitions"
	}
	return qos.Compatible(wQoS, rQoS)
}

func (e *Engine) tryMatchWriterReader(w LocalWriter, pr *ProxyReader) {
	ok, reason := compatible(w.TopicName(), w.TypeName(), w.QoS(), pr.TopicName, pr.TypeName, pr.QoS)
	e.mu.Lock()
	already := e.matchedW[w.GUID()][pr.Guid]
	if !ok {
		if already {
			delete(e.matchedW[w.GUID()], pr.Guid)
		}
		e.mu.Unlock()
		if already {
			e.logger.Info("unmatch: writer/proxy-reader no longer compatible", "writer", w.GUID(), "proxy_reader", pr.Guid, "reason", reason)
			w.UnmatchProxyReader(pr.Guid)
			e.notifyMatchCount(w.GUID().Prefix)
		}
		return
	}
	if already {
		e.mu.Unlock()
		return
	}
	if e.matchedW[w.GUID()] == nil {
		e.matchedW[w.GUID()] = make(map[entity.GUID]bool)
	}
	e.matchedW[w.GUID()][pr.Guid] = true
	addrs := pr.Addresses
	e.mu.Unlock()

	e.logger.Info("match: writer <-> proxy-reader", "writer", w.GUID(), "proxy_reader", pr.Guid)
	w.MatchProxyReader(pr.Guid, addrs)
	e.notifyMatchCount(w.GUID().Prefix)
}

func (e *Engine) tryMatchReaderWriter(r LocalReader, pw *ProxyWriter) {
	ok, reason := compatible(pw.TopicName, pw.TypeName, pw.QoS, r.TopicName(), r.TypeName(), r.QoS())
	e.mu.Lock()
	already := e.matchedR[r.GUID()][pw.Guid]
	if !ok {
		if already {
			delete(e.matchedR[r.GUID()], pw.Guid)
		}
		e.mu.Unlock()
		if already {
			e.logger.Info("unmatch: reader/proxy-writer no longer compatible", "reader", r.GUID(), "proxy_writer", pw.Guid, "reason", reason)
			r.UnmatchProxyWriter(pw.Guid)
			e.notifyMatchCount(r.GUID().Prefix)
		}
		return
	}
	if already {
		e.mu.Unlock()
		return
	}
	if e.matchedR[r.GUID()] == nil {
		e.matchedR[r.GUID()] = make(map[entity.GUID]bool)
	}
	e.matchedR[r.GUID()][pw.Guid] = true
	addrs := pw.Addresses
	e.mu.Unlock()

	e.logger.Info("match: reader <-> proxy-writer", "reader", r.GUID(), "proxy_writer", pw.Guid)
	r.MatchProxyWriter(pw.Guid, addrs)
	e.notifyMatchCount(r.GUID().Prefix)
}

// MatchedReaders returns a snapshot of every proxy reader currently
// matched with the local writer w, per original_source/dds_matched.c's
// dds_get_matched_subscriptions.
func (e *Engine) MatchedReaders(w entity.GUID) []BuiltinTopicData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BuiltinTopicData, 0, len(e.matchedW[w]))
	for g := range e.matchedW[w] {
		if pr, ok := e.proxyReaders[g]; ok {
			out = append(out, BuiltinTopicData{GUID: g, TopicName: pr.TopicName, TypeName: pr.TypeName, QoS: pr.QoS})
		}
	}
	return out
}

// MatchedWriters returns a snapshot of every proxy writer currently
// matched with the local reader r, per dds_matched.c's
// dds_get_matched_publications.
func (e *Engine) MatchedWriters(r entity.GUID) []BuiltinTopicData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BuiltinTopicData, 0, len(e.matchedR[r]))
	for g := range e.matchedR[r] {
		if pw, ok := e.proxyWriters[g]; ok {
			out = append(out, BuiltinTopicData{GUID: g, TopicName: pw.TopicName, TypeName: pw.TypeName, QoS: pw.QoS})
		}
	}
	return out
}

// Participants returns a snapshot of every currently known proxy
// participant.
func (e *Engine) Participants() []*ProxyParticipant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ProxyParticipant, 0, len(e.participants))
	for _, p := range e.participants {
		out = append(out, p)
	}
	return out
}

// ProxyParticipantByGUID looks up one discovered remote participant.
func (e *Engine) ProxyParticipantByGUID(g entity.GUID) (*ProxyParticipant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.participants[g]
	return p, ok
}
