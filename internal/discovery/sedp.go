package discovery

import (
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/wire"
)

// HandleSEDPWriter processes one received SEDP publication sample,
// creating or updating the ProxyWriter it describes and running the match
// test against every registered local reader on the same topic. Mirrors
// q_sedp.c's handle_SEDP_alive for a publication.
func (e *Engine) HandleSEDPWriter(g entity.GUID, topic, typeName string, q qos.QoS, addrs []wire.Locator) *ProxyWriter {
	e.mu.Lock()
	pw, existed := e.proxyWriters[g]
	if !existed {
		pw = &ProxyWriter{Guid: g}
		e.proxyWriters[g] = pw
	}
	pw.TopicName, pw.TypeName, pw.QoS, pw.Addresses = topic, typeName, q, addrs
	candidates := make([]LocalReader, 0)
	for _, r := range e.localReaders {
		if r.TopicName() == topic {
			candidates = append(candidates, r)
		}
	}
	e.mu.Unlock()

	if !existed && e.hash != nil {
		if err := e.hash.Insert(pw); err != nil {
			e.logger.Warn("discovery: proxy writer already in entity hash", "guid", g, "error", err)
		}
	}

	for _, r := range candidates {
		e.tryMatchReaderWriter(r, pw)
	}
	return pw
}

// HandleSEDPReader is the reader-side counterpart of HandleSEDPWriter.
func (e *Engine) HandleSEDPReader(g entity.GUID, topic, typeName string, q qos.QoS, addrs []wire.Locator) *ProxyReader {
	e.mu.Lock()
	pr, existed := e.proxyReaders[g]
	if !existed {
		pr = &ProxyReader{Guid: g}
		e.proxyReaders[g] = pr
	}
	pr.TopicName, pr.TypeName, pr.QoS, pr.Addresses = topic, typeName, q, addrs
	candidates := make([]LocalWriter, 0)
	for _, w := range e.localWriters {
		if w.TopicName() == topic {
			candidates = append(candidates, w)
		}
	}
	e.mu.Unlock()

	if !existed && e.hash != nil {
		if err := e.hash.Insert(pr); err != nil {
			e.logger.Warn("discovery: proxy reader already in entity hash", "guid", g, "error", err)
		}
	}

	for _, w := range candidates {
		e.tryMatchWriterReader(w, pr)
	}
	return pr
}
