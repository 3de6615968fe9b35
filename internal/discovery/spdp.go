package discovery

import (
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/lease"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
	"github.com/ocx/ddscore/internal/wire"
)

// defaultLeaseDuration is used when an SPDP sample carries no explicit
// liveliness lease duration; Cyclone defaults this from config, but a
// fixed fallback keeps the discovery engine self-contained for tests.
const defaultLeaseDuration = rtps.Duration(10_000_000_000) // 10s

// ProxyParticipant is the local record of a remote participant discovered
// via SPDP (spec.md section 3). It implements ephash.Entity so the
// process-wide registry can enumerate it alongside local entities.
type ProxyParticipant struct {
	Guid             entity.GUID
	Addresses        []wire.Locator
	UserData         string // the "DDSPerf:..." convention from spec.md section 6, opaque here
	PrivilegedPPGUID entity.GUID
	HasPrivilegedPP  bool

	lease *lease.Lease
}

func (p *ProxyParticipant) GUID() entity.GUID  { return p.Guid }
func (p *ProxyParticipant) Kind() entity.Kind  { return entity.KindProxyParticipant }

// ProxyWriter is a remote writer discovered via SEDP.
type ProxyWriter struct {
	Guid      entity.GUID
	TopicName string
	TypeName  string
	QoS       qos.QoS
	Addresses []wire.Locator
}

func (w *ProxyWriter) GUID() entity.GUID { return w.Guid }
func (w *ProxyWriter) Kind() entity.Kind { return entity.KindProxyWriter }

// ProxyReader is a remote reader discovered via SEDP.
type ProxyReader struct {
	Guid      entity.GUID
	TopicName string
	TypeName  string
	QoS       qos.QoS
	Addresses []wire.Locator
}

func (r *ProxyReader) GUID() entity.GUID { return r.Guid }
func (r *ProxyReader) Kind() entity.Kind { return entity.KindProxyReader }

// HandleSPDP processes one received SPDP sample: guidPrefix identifies the
// announcing participant, addrs is the address set it advertised, and
// userData is the opaque convention string from spec.md section 6. On
// first sight of a guidPrefix, a ProxyParticipant is created and its
// lease registered; on subsequent sight, the lease is renewed. Mirrors
// q_spdp.c's handle_SPDP_alive.
func (e *Engine) HandleSPDP(prefix entity.GUIDPrefix, addrs []wire.Locator, userData string, leaseDuration rtps.Duration, now rtps.Time) *ProxyParticipant {
	guid := entity.GUID{Prefix: prefix, EntID: entity.EntityIDParticipant}

	e.mu.Lock()
	if pp, ok := e.participants[guid]; ok {
		e.mu.Unlock()
		if e.leases != nil && pp.lease != nil {
			e.leases.Renew(pp.lease, now)
		}
		return pp
	}

	if leaseDuration <= 0 {
		leaseDuration = defaultLeaseDuration
	}
	pp := &ProxyParticipant{Guid: guid, Addresses: addrs, UserData: userData}
	e.participants[guid] = pp
	e.mu.Unlock()

	if e.hash != nil {
		if err := e.hash.Insert(pp); err != nil {
			e.logger.Warn("discovery: proxy participant already in entity hash", "guid", guid, "error", err)
		}
	}
	if e.leases != nil {
		pp.lease = e.leases.Create(guid, entity.KindProxyParticipant, now.Add(leaseDuration), leaseDuration)
		e.leases.Register(pp.lease)
	}
	e.logger.Info("discovery: new proxy participant", "guid", guid, "user_data", userData)
	return pp
}

// SetPrivilegedDependency records that pp's SPDP/SEDP traffic arrives via
// (and so its liveliness is parasitic on) the participant identified by
// privGUID, per spec.md section 4.B's privileged-participant rescue.
func (e *Engine) SetPrivilegedDependency(g, privGUID entity.GUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pp, ok := e.participants[g]; ok {
		pp.PrivilegedPPGUID = privGUID
		pp.HasPrivilegedPP = true
	}
}

// PrivilegedPPGUID implements lease.PrivilegedLookup.
func (e *Engine) PrivilegedPPGUID(g entity.GUID) (entity.GUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pp, ok := e.participants[g]
	if !ok || !pp.HasPrivilegedPP {
		return entity.GUID{}, false
	}
	return pp.PrivilegedPPGUID, true
}

// ProxyParticipantLive implements lease.PrivilegedLookup.
func (e *Engine) ProxyParticipantLive(g entity.GUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.participants[g]
	return ok
}

// DeleteProxyParticipantByGUID tears down a remote participant and every
// proxy endpoint it owned, unmatching each from any local peer it was
// paired with. Implements lease.Deleter.
func (e *Engine) DeleteProxyParticipantByGUID(g entity.GUID) {
	e.mu.Lock()
	pp, ok := e.participants[g]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.participants, g)

	var ownedWriters, ownedReaders []entity.GUID
	for pwg, pw := range e.proxyWriters {
		if pwg.Prefix == g.Prefix {
			ownedWriters = append(ownedWriters, pw.Guid)
		}
	}
	for prg, pr := range e.proxyReaders {
		if prg.Prefix == g.Prefix {
			ownedReaders = append(ownedReaders, pr.Guid)
		}
	}
	e.mu.Unlock()

	if e.hash != nil {
		e.hash.Remove(g)
	}
	if e.leases != nil && pp.lease != nil {
		e.leases.Free(pp.lease)
	}
	for _, w := range ownedWriters {
		e.DeleteProxyWriter(w)
	}
	for _, r := range ownedReaders {
		e.DeleteProxyReader(r)
	}
	e.logger.Info("discovery: proxy participant deleted", "guid", g)
}

// DeleteProxyWriter unmatches and removes a single proxy writer.
// Implements lease.Deleter.
func (e *Engine) DeleteProxyWriter(g entity.GUID) {
	e.mu.Lock()
	_, ok := e.proxyWriters[g]
	delete(e.proxyWriters, g)
	var affected []entity.GUID
	for rg, peers := range e.matchedR {
		if peers[g] {
			delete(peers, g)
			affected = append(affected, rg)
		}
	}
	readers := e.localReaders
	e.mu.Unlock()

	if !ok {
		return
	}
	if e.hash != nil {
		e.hash.Remove(g)
	}
	for _, rg := range affected {
		if r, ok := readers[rg]; ok {
			r.UnmatchProxyWriter(g)
			e.notifyMatchCount(rg.Prefix)
		}
	}
}

// DeleteProxyReader unmatches and removes a single proxy reader.
// Implements lease.Deleter.
func (e *Engine) DeleteProxyReader(g entity.GUID) {
	e.mu.Lock()
	_, ok := e.proxyReaders[g]
	delete(e.proxyReaders, g)
	var affected []entity.GUID
	for wg, peers := range e.matchedW {
		if peers[g] {
			delete(peers, g)
			affected = append(affected, wg)
		}
	}
	writers := e.localWriters
	e.mu.Unlock()

	if !ok {
		return
	}
	if e.hash != nil {
		e.hash.Remove(g)
	}
	for _, wg := range affected {
		if w, ok := writers[wg]; ok {
			w.UnmatchProxyReader(g)
			e.notifyMatchCount(wg.Prefix)
		}
	}
}
