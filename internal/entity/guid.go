// Package entity defines the identifiers and shared error taxonomy used
// across the domain: GUIDs, entity kinds, instance handles and the
// ReturnCode family from spec section 7.
package entity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// GUIDPrefixLen is the length in octets of the participant-scoped prefix.
const GUIDPrefixLen = 12

// GUIDPrefix identifies a participant; shared by every entity it owns.
type GUIDPrefix [GUIDPrefixLen]byte

// EntityID is the 4-octet suffix distinguishing an entity within a
// participant (reader, writer, or one of the reserved built-in ids).
type EntityID [4]byte

// Well-known entity id suffixes for the built-in discovery endpoints.
var (
	EntityIDParticipant    = EntityID{0x00, 0x00, 0x01, 0xc1}
	EntityIDSPDPWriter     = EntityID{0x00, 0x01, 0x00, 0xc2}
	EntityIDSPDPReader     = EntityID{0x00, 0x01, 0x00, 0xc7}
	EntityIDSEDPPubWriter  = EntityID{0x00, 0x00, 0x03, 0xc2}
	EntityIDSEDPPubReader  = EntityID{0x00, 0x00, 0x03, 0xc7}
	EntityIDSEDPSubWriter  = EntityID{0x00, 0x00, 0x04, 0xc2}
	EntityIDSEDPSubReader  = EntityID{0x00, 0x00, 0x04, 0xc7}
	EntityIDPMDWriter      = EntityID{0x00, 0x02, 0x00, 0xc2}
	EntityIDPMDReader      = EntityID{0x00, 0x02, 0x00, 0xc7}
)

// GUID globally identifies one RTPS entity: a 12-octet participant prefix
// plus a 4-octet entity id.
type GUID struct {
	Prefix GUIDPrefix
	EntID  EntityID
}

// String renders the GUID the way Cyclone DDS's PGUIDFMT trace macro does:
// prefix octets then entity id, colon separated.
func (g GUID) String() string {
	return fmt.Sprintf("%s:%s", hex.EncodeToString(g.Prefix[:]), hex.EncodeToString(g.EntID[:]))
}

// ParticipantGUID returns the GUID of the participant owning this entity.
func (g GUID) ParticipantGUID() GUID {
	return GUID{Prefix: g.Prefix, EntID: EntityIDParticipant}
}

// IsParticipant reports whether this GUID names a participant itself.
func (g GUID) IsParticipant() bool {
	return g.EntID == EntityIDParticipant
}

// NewGUIDPrefix derives a prefix deterministically from a participant index
// and a random salt; production deployments would instead draw from a CSPRNG
// or the host's network interface, but determinism is convenient for tests
// and the debug monitor's replayable fixtures.
func NewGUIDPrefix(salt uint32, participantIndex uint32) GUIDPrefix {
	var p GUIDPrefix
	binary.BigEndian.PutUint32(p[0:4], salt)
	binary.BigEndian.PutUint32(p[4:8], participantIndex)
	binary.BigEndian.PutUint32(p[8:12], 0)
	return p
}

// Kind enumerates the closed set of entities the domain tracks, replacing
// the source's dynamic-dispatch entity_common/m_deriver pattern with a
// tagged discriminator (see SPEC_FULL.md REDESIGN FLAGS).
type Kind int

const (
	KindParticipant Kind = iota
	KindProxyParticipant
	KindWriter
	KindReader
	KindProxyWriter
	KindProxyReader
)

func (k Kind) String() string {
	switch k {
	case KindParticipant:
		return "PARTICIPANT"
	case KindProxyParticipant:
		return "PROXY_PARTICIPANT"
	case KindWriter:
		return "WRITER"
	case KindReader:
		return "READER"
	case KindProxyWriter:
		return "PROXY_WRITER"
	case KindProxyReader:
		return "PROXY_READER"
	default:
		return "UNKNOWN"
	}
}

// InstanceHandle is an opaque, process-unique identifier for a topic
// instance, issued by the tkmap from a counter starting at 1. A handle is a
// plain sequence number; it carries no type discriminator.
type InstanceHandle uint64

// NilHandle is the sentinel meaning "no specific instance" or "unknown".
const NilHandle InstanceHandle = 0
