// Package wire implements the RTPS message and submessage wire format:
// the fixed message header, the submessage header framing scheme, and the
// DATA/HEARTBEAT/ACKNACK/GAP family used by internal/whc and
// internal/rhc to exchange samples (spec.md section 4.D/F/E).
//
// Framing follows the same length-prefixed, binary.Write/Read marshaling
// style as the teacher's protocol frame codec, adapted to RTPS's
// variable-length submessage chain instead of one fixed header.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolID identifies the wire format at the start of every message.
var ProtocolID = [4]byte{'R', 'T', 'P', 'S'}

// ProtocolVersion is the version this implementation speaks.
type ProtocolVersion struct {
	Major, Minor uint8
}

// CurrentVersion is the version written by this implementation.
var CurrentVersion = ProtocolVersion{Major: 2, Minor: 3}

// VendorID identifies the implementation that produced a message.
type VendorID [2]byte

// ThisVendorID is this implementation's own vendor id, chosen outside the
// range reserved for the RTPS specification's registered vendors.
var ThisVendorID = VendorID{0x01, 0xff}

// MessageHeader is the fixed 20-byte RTPS message header: protocol id,
// version, vendor id, and the sending participant's GUID prefix.
type MessageHeader struct {
	Protocol   [4]byte
	Version    ProtocolVersion
	Vendor     VendorID
	GUIDPrefix [12]byte
}

const messageHeaderSize = 20

// Marshal writes the fixed header.
func (h *MessageHeader) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, h.Protocol); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.Vendor); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, h.GUIDPrefix)
}

// Unmarshal reads the fixed header and validates the protocol id.
func (h *MessageHeader) Unmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &h.Protocol); err != nil {
		return err
	}
	if h.Protocol != ProtocolID {
		return fmt.Errorf("wire: bad protocol id %q", h.Protocol)
	}
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Vendor); err != nil {
		return err
	}
	return binary.Read(r, binary.BigEndian, &h.GUIDPrefix)
}

// SubmessageKind identifies the RTPS submessage types this implementation
// exchanges. Values match the RTPS specification's registered submessage
// ids so wire captures stay interoperable with a packet-dissecting reader.
type SubmessageKind uint8

const (
	KindPad           SubmessageKind = 0x01
	KindAckNack       SubmessageKind = 0x06
	KindHeartbeat     SubmessageKind = 0x07
	KindGap           SubmessageKind = 0x08
	KindInfoTS        SubmessageKind = 0x09
	KindInfoDST       SubmessageKind = 0x0e
	KindData          SubmessageKind = 0x15
	KindDataFrag      SubmessageKind = 0x16
	KindNackFrag      SubmessageKind = 0x12
	KindHeartbeatFrag SubmessageKind = 0x13
)

func (k SubmessageKind) String() string {
	switch k {
	case KindPad:
		return "PAD"
	case KindAckNack:
		return "ACKNACK"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindGap:
		return "GAP"
	case KindInfoTS:
		return "INFO_TS"
	case KindInfoDST:
		return "INFO_DST"
	case KindData:
		return "DATA"
	case KindDataFrag:
		return "DATAFRAG"
	case KindNackFrag:
		return "NACKFRAG"
	case KindHeartbeatFrag:
		return "HEARTBEATFRAG"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(k))
	}
}

// SubmessageFlags carries the per-submessage flag bits; bit 0 is always
// the endianness flag, which this implementation always sets (big-endian
// on the wire, matching MessageHeader's byte order).
type SubmessageFlags uint8

const (
	FlagEndianness SubmessageFlags = 1 << 0
)

// SubmessageHeader prefixes every submessage: kind, flags, and the octet
// count of the submessage body that follows (excluding this header).
type SubmessageHeader struct {
	Kind               SubmessageKind
	Flags              SubmessageFlags
	OctetsToNextHeader uint16
}

const submessageHeaderSize = 4

func (h *SubmessageHeader) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, h.Kind); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.Flags); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, h.OctetsToNextHeader)
}

func (h *SubmessageHeader) Unmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &h.Kind); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Flags); err != nil {
		return err
	}
	return binary.Read(r, binary.BigEndian, &h.OctetsToNextHeader)
}

// SequenceNumber is a 64-bit monotonic sample counter, transmitted on the
// wire as the RTPS spec's (high int32, low uint32) pair for interop with
// dissectors even though this implementation keeps it as one int64 value
// internally.
type SequenceNumber int64

// SequenceNumberUnknown marks "no sequence number" (e.g. an empty GAP).
const SequenceNumberUnknown SequenceNumber = -1

func writeSeqNum(w io.Writer, sn SequenceNumber) error {
	high := int32(sn >> 32)
	low := uint32(sn & 0xffffffff)
	if err := binary.Write(w, binary.BigEndian, high); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, low)
}

func readSeqNum(r io.Reader) (SequenceNumber, error) {
	var high int32
	var low uint32
	if err := binary.Read(r, binary.BigEndian, &high); err != nil {
		return 0, err
	}
	if err := binary.Read(r, binary.BigEndian, &low); err != nil {
		return 0, err
	}
	return SequenceNumber(int64(high)<<32 | int64(low)), nil
}

// SequenceNumberSet compactly encodes a bitmap of missing/present sequence
// numbers relative to a base, as used by ACKNACK and the reader side of
// GAP processing.
type SequenceNumberSet struct {
	Base   SequenceNumber
	Bits   []bool // Bits[i] set means Base+i is in the set
}

func writeSeqNumSet(w io.Writer, s SequenceNumberSet) error {
	if err := writeSeqNum(w, s.Base); err != nil {
		return err
	}
	numBits := uint32(len(s.Bits))
	if err := binary.Write(w, binary.BigEndian, numBits); err != nil {
		return err
	}
	numWords := (len(s.Bits) + 31) / 32
	words := make([]uint32, numWords)
	for i, b := range s.Bits {
		if b {
			words[i/32] |= 1 << uint(31-i%32)
		}
	}
	return binary.Write(w, binary.BigEndian, words)
}

func readSeqNumSet(r io.Reader) (SequenceNumberSet, error) {
	var s SequenceNumberSet
	base, err := readSeqNum(r)
	if err != nil {
		return s, err
	}
	s.Base = base

	var numBits uint32
	if err := binary.Read(r, binary.BigEndian, &numBits); err != nil {
		return s, err
	}
	numWords := (int(numBits) + 31) / 32
	words := make([]uint32, numWords)
	if err := binary.Read(r, binary.BigEndian, &words); err != nil {
		return s, err
	}
	s.Bits = make([]bool, numBits)
	for i := range s.Bits {
		s.Bits[i] = words[i/32]&(1<<uint(31-i%32)) != 0
	}
	return s, nil
}

// RawEntityID is the entity id as carried in submessages: wire does not
// import internal/entity, so submessages hold the raw 4 bytes and callers
// convert via entity.EntityID(raw) at the boundary.
type RawEntityID [4]byte

// Locator is an RTPS transport address: a kind discriminator, a port, and
// a 16-byte address (IPv4 addresses are stored in the last 4 bytes).
type Locator struct {
	Kind    int32
	Port    uint32
	Address [16]byte
}

const (
	LocatorKindInvalid = -1
	LocatorKindUDPv4    = 1
	LocatorKindTCPv4    = 4
)

func (l Locator) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, l.Kind); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, l.Port); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, l.Address)
}

func UnmarshalLocator(r io.Reader) (Locator, error) {
	var l Locator
	if err := binary.Read(r, binary.BigEndian, &l.Kind); err != nil {
		return l, err
	}
	if err := binary.Read(r, binary.BigEndian, &l.Port); err != nil {
		return l, err
	}
	err := binary.Read(r, binary.BigEndian, &l.Address)
	return l, err
}

// Message is a full RTPS message: the fixed header plus its submessage
// chain, already decoded into concrete Go values rather than kept as a
// raw byte stream.
type Message struct {
	Header      MessageHeader
	Submessages []Submessage
}

// Submessage is implemented by every concrete submessage payload type in
// this package (Data, Heartbeat, AckNack, Gap, ...).
type Submessage interface {
	Kind() SubmessageKind
	marshalBody(w io.Writer) error
}

// Marshal serializes the full message: header, then each submessage
// prefixed by its own SubmessageHeader with OctetsToNextHeader filled in.
func (m *Message) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.Header.Marshal(buf); err != nil {
		return nil, err
	}
	for _, sm := range m.Submessages {
		body := new(bytes.Buffer)
		if err := sm.marshalBody(body); err != nil {
			return nil, err
		}
		hdr := SubmessageHeader{
			Kind:               sm.Kind(),
			Flags:              FlagEndianness,
			OctetsToNextHeader: uint16(body.Len()),
		}
		if err := hdr.Marshal(buf); err != nil {
			return nil, err
		}
		if _, err := buf.Write(body.Bytes()); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a full message from data, given a decoder registry
// mapping each SubmessageKind to a function that parses its body.
func Unmarshal(data []byte, decode func(SubmessageHeader, []byte) (Submessage, error)) (*Message, error) {
	r := bytes.NewReader(data)
	m := &Message{}
	if err := m.Header.Unmarshal(r); err != nil {
		return nil, err
	}
	for r.Len() >= submessageHeaderSize {
		var sh SubmessageHeader
		if err := sh.Unmarshal(r); err != nil {
			return nil, err
		}
		body := make([]byte, sh.OctetsToNextHeader)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		sm, err := decode(sh, body)
		if err != nil {
			return nil, err
		}
		m.Submessages = append(m.Submessages, sm)
	}
	return m, nil
}
