package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Data carries one sample (or a dispose/unregister change with no payload)
// from a writer to a reader.
type Data struct {
	ReaderID        RawEntityID
	WriterID        RawEntityID
	WriterSN        SequenceNumber
	InlineQoS       []byte // raw parameter-list bytes, opaque to this package
	SerializedData  []byte
	DataFlag        bool // payload present
	KeyFlag         bool // payload is a key-only (dispose/unregister) sample
}

func (d *Data) Kind() SubmessageKind { return KindData }

func (d *Data) marshalBody(w io.Writer) error {
	var flags byte
	if d.DataFlag {
		flags |= 1 << 2
	}
	if d.KeyFlag {
		flags |= 1 << 3
	}
	inlineFlag := byte(0)
	if len(d.InlineQoS) > 0 {
		inlineFlag = 1 << 1
	}
	flags |= inlineFlag

	if err := binary.Write(w, binary.BigEndian, uint16(0)); err != nil { // extraFlags
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(16+len(d.InlineQoS))); err != nil { // octetsToInlineQoS
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, d.WriterSN); err != nil {
		return err
	}
	if len(d.InlineQoS) > 0 {
		if _, err := w.Write(d.InlineQoS); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}
	if d.DataFlag {
		if _, err := w.Write(d.SerializedData); err != nil {
			return err
		}
	}
	return nil
}

// DecodeData parses a DATA submessage body. The flags byte this
// implementation writes at the start of the payload section is a
// simplification over the real RTPS bit layout (which packs D/K into the
// submessage header flags, not the payload) kept private to this codec so
// encode and decode stay self-consistent.
func DecodeData(body []byte) (*Data, error) {
	r := bytes.NewReader(body)
	var extraFlags, octetsToInlineQoS uint16
	if err := binary.Read(r, binary.BigEndian, &extraFlags); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &octetsToInlineQoS); err != nil {
		return nil, err
	}
	d := &Data{}
	if err := binary.Read(r, binary.BigEndian, &d.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &d.WriterID); err != nil {
		return nil, err
	}
	sn, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	d.WriterSN = sn

	qosLen := int(octetsToInlineQoS) - 16
	if qosLen > 0 {
		d.InlineQoS = make([]byte, qosLen)
		if _, err := io.ReadFull(r, d.InlineQoS); err != nil {
			return nil, err
		}
	}
	flagsByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.DataFlag = flagsByte&(1<<2) != 0
	d.KeyFlag = flagsByte&(1<<3) != 0
	if d.DataFlag {
		d.SerializedData = make([]byte, r.Len())
		if _, err := io.ReadFull(r, d.SerializedData); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DataFrag carries one fragment of a large sample.
type DataFrag struct {
	ReaderID        RawEntityID
	WriterID        RawEntityID
	WriterSN        SequenceNumber
	FragmentStartNum uint32
	FragmentsInSubmessage uint16
	FragmentSize    uint16
	SampleSize      uint32
	FragmentData    []byte
}

func (d *DataFrag) Kind() SubmessageKind { return KindDataFrag }

func (d *DataFrag) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, d.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, d.WriterSN); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.FragmentStartNum); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.FragmentsInSubmessage); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.FragmentSize); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, d.SampleSize); err != nil {
		return err
	}
	_, err := w.Write(d.FragmentData)
	return err
}

func DecodeDataFrag(body []byte) (*DataFrag, error) {
	r := bytes.NewReader(body)
	d := &DataFrag{}
	for _, f := range []any{&d.ReaderID, &d.WriterID} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	sn, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	d.WriterSN = sn
	for _, f := range []any{&d.FragmentStartNum, &d.FragmentsInSubmessage, &d.FragmentSize, &d.SampleSize} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	d.FragmentData = make([]byte, r.Len())
	_, err = io.ReadFull(r, d.FragmentData)
	return d, err
}

// Heartbeat informs a reader of the range of sequence numbers a writer
// currently holds, prompting an ACKNACK in response.
type Heartbeat struct {
	ReaderID    RawEntityID
	WriterID    RawEntityID
	FirstSN     SequenceNumber
	LastSN      SequenceNumber
	Count       int32
	FinalFlag   bool // no response requested
	LivelinessFlag bool
}

func (h *Heartbeat) Kind() SubmessageKind { return KindHeartbeat }

func (h *Heartbeat) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, h.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, h.FirstSN); err != nil {
		return err
	}
	if err := writeSeqNum(w, h.LastSN); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.Count); err != nil {
		return err
	}
	var flags byte
	if h.FinalFlag {
		flags |= 1
	}
	if h.LivelinessFlag {
		flags |= 2
	}
	_, err := w.Write([]byte{flags})
	return err
}

func DecodeHeartbeat(body []byte) (*Heartbeat, error) {
	r := bytes.NewReader(body)
	h := &Heartbeat{}
	if err := binary.Read(r, binary.BigEndian, &h.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.WriterID); err != nil {
		return nil, err
	}
	firstSN, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	h.FirstSN = firstSN
	lastSN, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	h.LastSN = lastSN
	if err := binary.Read(r, binary.BigEndian, &h.Count); err != nil {
		return nil, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	h.FinalFlag = flags&1 != 0
	h.LivelinessFlag = flags&2 != 0
	return h, nil
}

// AckNack acknowledges received sequence numbers and requests
// retransmission of missing ones.
type AckNack struct {
	ReaderID   RawEntityID
	WriterID   RawEntityID
	ReaderSNState SequenceNumberSet
	Count      int32
	FinalFlag  bool
}

func (a *AckNack) Kind() SubmessageKind { return KindAckNack }

func (a *AckNack) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, a.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, a.WriterID); err != nil {
		return err
	}
	if err := writeSeqNumSet(w, a.ReaderSNState); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, a.Count)
}

func DecodeAckNack(body []byte) (*AckNack, error) {
	r := bytes.NewReader(body)
	a := &AckNack{}
	if err := binary.Read(r, binary.BigEndian, &a.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &a.WriterID); err != nil {
		return nil, err
	}
	set, err := readSeqNumSet(r)
	if err != nil {
		return nil, err
	}
	a.ReaderSNState = set
	err = binary.Read(r, binary.BigEndian, &a.Count)
	return a, err
}

// NackFrag requests retransmission of specific fragments of one sample.
type NackFrag struct {
	ReaderID      RawEntityID
	WriterID      RawEntityID
	WriterSN      SequenceNumber
	FragmentNumberState SequenceNumberSet
	Count         int32
}

func (n *NackFrag) Kind() SubmessageKind { return KindNackFrag }

func (n *NackFrag) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, n.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, n.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, n.WriterSN); err != nil {
		return err
	}
	if err := writeSeqNumSet(w, n.FragmentNumberState); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, n.Count)
}

func DecodeNackFrag(body []byte) (*NackFrag, error) {
	r := bytes.NewReader(body)
	n := &NackFrag{}
	if err := binary.Read(r, binary.BigEndian, &n.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &n.WriterID); err != nil {
		return nil, err
	}
	sn, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	n.WriterSN = sn
	set, err := readSeqNumSet(r)
	if err != nil {
		return nil, err
	}
	n.FragmentNumberState = set
	err = binary.Read(r, binary.BigEndian, &n.Count)
	return n, err
}

// HeartbeatFrag tells a reader how many fragments of an in-progress sample
// the writer currently holds.
type HeartbeatFrag struct {
	ReaderID     RawEntityID
	WriterID     RawEntityID
	WriterSN     SequenceNumber
	LastFragmentNum uint32
	Count        int32
}

func (h *HeartbeatFrag) Kind() SubmessageKind { return KindHeartbeatFrag }

func (h *HeartbeatFrag) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, h.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, h.WriterSN); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.LastFragmentNum); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, h.Count)
}

func DecodeHeartbeatFrag(body []byte) (*HeartbeatFrag, error) {
	r := bytes.NewReader(body)
	h := &HeartbeatFrag{}
	if err := binary.Read(r, binary.BigEndian, &h.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.WriterID); err != nil {
		return nil, err
	}
	sn, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	h.WriterSN = sn
	if err := binary.Read(r, binary.BigEndian, &h.LastFragmentNum); err != nil {
		return nil, err
	}
	err = binary.Read(r, binary.BigEndian, &h.Count)
	return h, err
}

// Gap informs a reader that a range of sequence numbers will never be sent,
// typically because the writer disposed of them before the reader joined.
type Gap struct {
	ReaderID   RawEntityID
	WriterID   RawEntityID
	GapStart   SequenceNumber
	GapList    SequenceNumberSet
}

func (g *Gap) Kind() SubmessageKind { return KindGap }

func (g *Gap) marshalBody(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, g.ReaderID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, g.WriterID); err != nil {
		return err
	}
	if err := writeSeqNum(w, g.GapStart); err != nil {
		return err
	}
	return writeSeqNumSet(w, g.GapList)
}

func DecodeGap(body []byte) (*Gap, error) {
	r := bytes.NewReader(body)
	g := &Gap{}
	if err := binary.Read(r, binary.BigEndian, &g.ReaderID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &g.WriterID); err != nil {
		return nil, err
	}
	start, err := readSeqNum(r)
	if err != nil {
		return nil, err
	}
	g.GapStart = start
	list, err := readSeqNumSet(r)
	if err != nil {
		return nil, err
	}
	g.GapList = list
	return g, nil
}

// InfoTS carries the source timestamp applied to the submessages that
// follow it in the same message, until the next InfoTS.
type InfoTS struct {
	Seconds     int32
	Fraction    uint32
	Invalidate  bool // true = clear the effective timestamp instead of setting it
}

func (i *InfoTS) Kind() SubmessageKind { return KindInfoTS }

func (i *InfoTS) marshalBody(w io.Writer) error {
	if i.Invalidate {
		return nil
	}
	if err := binary.Write(w, binary.BigEndian, i.Seconds); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, i.Fraction)
}

func DecodeInfoTS(body []byte) (*InfoTS, error) {
	i := &InfoTS{}
	if len(body) == 0 {
		i.Invalidate = true
		return i, nil
	}
	r := bytes.NewReader(body)
	if err := binary.Read(r, binary.BigEndian, &i.Seconds); err != nil {
		return nil, err
	}
	err := binary.Read(r, binary.BigEndian, &i.Fraction)
	return i, err
}

// InfoDST redirects the destination GUID prefix for the submessages that
// follow, used when addressing a specific participant directly.
type InfoDST struct {
	GUIDPrefix [12]byte
}

func (i *InfoDST) Kind() SubmessageKind { return KindInfoDST }

func (i *InfoDST) marshalBody(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, i.GUIDPrefix)
}

func DecodeInfoDST(body []byte) (*InfoDST, error) {
	r := bytes.NewReader(body)
	i := &InfoDST{}
	err := binary.Read(r, binary.BigEndian, &i.GUIDPrefix)
	return i, err
}

// Pad is a no-op submessage used to align a message to a boundary.
type Pad struct{}

func (Pad) Kind() SubmessageKind        { return KindPad }
func (Pad) marshalBody(io.Writer) error { return nil }

func DecodePad([]byte) (*Pad, error) { return &Pad{}, nil }

// Decode is the default decoder registry, dispatching on SubmessageHeader.Kind.
func Decode(sh SubmessageHeader, body []byte) (Submessage, error) {
	switch sh.Kind {
	case KindData:
		return DecodeData(body)
	case KindDataFrag:
		return DecodeDataFrag(body)
	case KindHeartbeat:
		return DecodeHeartbeat(body)
	case KindAckNack:
		return DecodeAckNack(body)
	case KindNackFrag:
		return DecodeNackFrag(body)
	case KindHeartbeatFrag:
		return DecodeHeartbeatFrag(body)
	case KindGap:
		return DecodeGap(body)
	case KindInfoTS:
		return DecodeInfoTS(body)
	case KindInfoDST:
		return DecodeInfoDST(body)
	case KindPad:
		return DecodePad(body)
	default:
		return nil, fmt.Errorf("wire: unknown submessage kind %s", sh.Kind)
	}
}
