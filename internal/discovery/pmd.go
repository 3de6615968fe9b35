package discovery

import (
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/rtps"
)

// PMDStatusInfo mirrors the status-info bits carried by a Participant
// Message Data sample: a plain keep-alive renews the lease; a dispose or
// unregister bit means the remote participant is announcing its own
// departure and should be torn down immediately rather than waiting for
// the lease to elapse. Ported from q_lease.c's handle_PMD, which is the
// original_source-only detail SPEC_FULL.md section 12 calls out (spec.md's
// prose only says "PMD renews the lease").
type PMDStatusInfo uint32

const (
	PMDKeepAlive   PMDStatusInfo = 0
	PMDDisposed    PMDStatusInfo = 1 << 0
	PMDUnregistered PMDStatusInfo = 1 << 1
)

// HandlePMD processes one received Participant Message Data sample
// (spec.md section 6's ParticipantMessageData wire format, minus the CDR
// framing which is the caller's concern). A plain keep-alive renews the
// owning participant's lease; a disposed or unregistered status
// immediately deletes the proxy participant, bypassing the lease heap
// entirely (the remote side told us it is gone, no need to wait out the
// timeout).
func (e *Engine) HandlePMD(prefix entity.GUIDPrefix, status PMDStatusInfo, now rtps.Time) {
	guid := entity.GUID{Prefix: prefix, EntID: entity.EntityIDParticipant}

	if status&(PMDDisposed|PMDUnregistered) != 0 {
		e.logger.Info("discovery: PMD dispose/unregister, deleting proxy participant immediately", "guid", guid)
		e.DeleteProxyParticipantByGUID(guid)
		return
	}

	e.mu.Lock()
	pp, ok := e.participants[guid]
	e.mu.Unlock()
	if !ok || pp.lease == nil || e.leases == nil {
		return
	}
	e.leases.Renew(pp.lease, now)
}
