package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() MessageHeader {
	return MessageHeader{
		Protocol: ProtocolID,
		Version:  CurrentVersion,
		Vendor:   ThisVendorID,
	}
}

func TestMessageRoundTripDataAndHeartbeat(t *testing.T) {
	msg := &Message{
		Header: testHeader(),
		Submessages: []Submessage{
			&InfoTS{Seconds: 100, Fraction: 42},
			&Data{
				ReaderID:       RawEntityID{0, 0, 0, 0},
				WriterID:       RawEntityID{0, 0, 1, 0xc2},
				WriterSN:       7,
				DataFlag:       true,
				SerializedData: []byte("hello instance"),
			},
			&Heartbeat{
				ReaderID:  RawEntityID{0, 0, 0, 0},
				WriterID:  RawEntityID{0, 0, 1, 0xc2},
				FirstSN:   1,
				LastSN:    7,
				Count:     3,
				FinalFlag: true,
			},
		},
	}

	raw, err := msg.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(raw, Decode)
	require.NoError(t, err)
	require.Len(t, decoded.Submessages, 3)

	ts, ok := decoded.Submessages[0].(*InfoTS)
	require.True(t, ok)
	assert.Equal(t, int32(100), ts.Seconds)
	assert.Equal(t, uint32(42), ts.Fraction)

	d, ok := decoded.Submessages[1].(*Data)
	require.True(t, ok)
	assert.Equal(t, SequenceNumber(7), d.WriterSN)
	assert.True(t, d.DataFlag)
	assert.Equal(t, "hello instance", string(d.SerializedData))

	hb, ok := decoded.Submessages[2].(*Heartbeat)
	require.True(t, ok)
	assert.Equal(t, SequenceNumber(1), hb.FirstSN)
	assert.Equal(t, SequenceNumber(7), hb.LastSN)
	assert.True(t, hb.FinalFlag)
}

func TestAckNackRoundTripWithBitmap(t *testing.T) {
	an := &AckNack{
		ReaderID: RawEntityID{0, 0, 0, 0},
		WriterID: RawEntityID{0, 0, 1, 0xc2},
		ReaderSNState: SequenceNumberSet{
			Base: 5,
			Bits: []bool{true, false, true, false, false, true},
		},
		Count: 2,
	}
	msg := &Message{Header: testHeader(), Submessages: []Submessage{an}}

	raw, err := msg.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(raw, Decode)
	require.NoError(t, err)
	require.Len(t, decoded.Submessages, 1)

	got, ok := decoded.Submessages[0].(*AckNack)
	require.True(t, ok)
	assert.Equal(t, SequenceNumber(5), got.ReaderSNState.Base)
	assert.Equal(t, an.ReaderSNState.Bits, got.ReaderSNState.Bits)
	assert.Equal(t, int32(2), got.Count)
}

func TestGapRoundTrip(t *testing.T) {
	g := &Gap{
		ReaderID: RawEntityID{0, 0, 0, 0},
		WriterID: RawEntityID{0, 0, 1, 0xc2},
		GapStart: 10,
		GapList:  SequenceNumberSet{Base: 10, Bits: []bool{true, true, false}},
	}
	msg := &Message{Header: testHeader(), Submessages: []Submessage{g}}

	raw, err := msg.Marshal()
	require.NoError(t, err)
	decoded, err := Unmarshal(raw, Decode)
	require.NoError(t, err)

	got := decoded.Submessages[0].(*Gap)
	assert.Equal(t, SequenceNumber(10), got.GapStart)
	assert.Equal(t, g.GapList.Bits, got.GapList.Bits)
}

func TestMessageHeaderRejectsBadProtocolID(t *testing.T) {
	h := testHeader()
	h.Protocol = [4]byte{'X', 'X', 'X', 'X'}
	msg := &Message{Header: h}
	raw, err := msg.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(raw, Decode)
	assert.Error(t, err)
}

func TestLocatorRoundTrip(t *testing.T) {
	l := Locator{Kind: LocatorKindUDPv4, Port: 7400}
	copy(l.Address[12:], []byte{239, 255, 0, 1})

	var buf bytes.Buffer
	require.NoError(t, l.Marshal(&buf))

	got, err := UnmarshalLocator(&buf)
	require.NoError(t, err)
	assert.Equal(t, l, got)
}
