package assemble

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/framehdr"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/sequence"
)

// buildPacket constructs a narrow-format space packet wrapping the given
// payload bytes, with a correct CRC trailer and no pad byte.
func buildPacket(seq uint16, data []byte) *packet.SpacePacket {
	secHdr := make([]byte, 11)
	body := append([]byte{}, secHdr...)
	body = append(body, data...)

	crcBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBytes, crc32.ChecksumIEEE(data))
	body = append(body, crcBytes...)

	var hdr [6]byte
	binary.BigEndian.PutUint16(hdr[0:2], 0x0800)
	binary.BigEndian.PutUint16(hdr[2:4], 0xC000|(seq&0x3FFF))
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(body)-1))

	return &packet.SpacePacket{Format: config.PacketFormatNarrow, Header: hdr, Body: body}
}

// buildFrameHeader returns a syntactically valid, checksum-correct
// 1280-byte v1 frame header declaring the given product length (total
// frame size minus the 1280-byte header).
func buildFrameHeader(t *testing.T, productLen uint32) []byte {
	t.Helper()
	hdr := make([]byte, framehdr.HeaderSize)
	marker := config.FrameHeaderFormatV1.SyncMarker()
	copy(hdr[0:4], marker[:])
	binary.LittleEndian.PutUint32(hdr[4:8], productLen)
	checksum := framehdr.ComputeChecksum(hdr)
	binary.LittleEndian.PutUint32(hdr[framehdr.HeaderSize-4:framehdr.HeaderSize], checksum)
	return hdr
}

type sourceItem struct {
	pkt      *packet.SpacePacket
	mismatch *sequence.Mismatch
}

type fakeSource struct {
	items []sourceItem
	idx   int
}

func (f *fakeSource) Next() (*packet.SpacePacket, *sequence.Mismatch, error) {
	if f.idx >= len(f.items) {
		return nil, nil, packet.ErrEndOfStream
	}
	it := f.items[f.idx]
	f.idx++
	return it.pkt, it.mismatch, nil
}

func newAssembler() *Assembler {
	decoder := framehdr.NewDecoder(config.FrameHeaderFormatV1, nil, nil)
	return New(config.PacketFormatNarrow, config.FrameHeaderFormatV1, decoder)
}

func TestAssembler_SinglePacketFrame(t *testing.T) {
	hdr := buildFrameHeader(t, 0) // frame fits entirely in the header
	source := &fakeSource{items: []sourceItem{{pkt: buildPacket(0, hdr)}}}

	a := newAssembler()
	var corruptNames []string
	frame, err := a.Next(source, func(n string) { corruptNames = append(corruptNames, n) }, nil)

	require.NoError(t, err)
	require.True(t, frame.ChecksumValid)
	require.Empty(t, corruptNames)
}

func TestAssembler_FrameSplitAcrossPackets(t *testing.T) {
	extra := 200
	hdr := buildFrameHeader(t, uint32(extra))
	tail := make([]byte, extra)
	for i := range tail {
		tail[i] = byte(i)
	}

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, hdr)},
		{pkt: buildPacket(1, tail)},
	}}

	a := newAssembler()
	frame, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, frame.ChecksumValid)
}

func TestAssembler_GapMidFrameSplicesAndMarksCorrupt(t *testing.T) {
	extra := 3000 // spans multiple narrow packets (max payload 1479)
	hdr := buildFrameHeader(t, uint32(extra))
	tail := make([]byte, extra)

	// First chunk of tail delivered normally, then a gap is reported on
	// the next read (one missing packet), then the remaining tail.
	firstChunk := tail[:1000]
	remaining := tail[1000:]

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, hdr)},
		{pkt: buildPacket(1, firstChunk)},
		{
			pkt: buildPacket(3, remaining),
			mismatch: &sequence.Mismatch{
				Expected: 2,
				Missing:  []sequence.Fingerprint{{Coarse: 1, Fine: 1, Seq: 2}},
			},
		},
	}}

	a := newAssembler()
	var corruptNames []string
	frame, err := a.Next(source, func(n string) { corruptNames = append(corruptNames, n) }, nil)

	require.NoError(t, err)
	require.NotEmpty(t, corruptNames)
	require.Contains(t, frame.Name, "_9_")
}

func TestAssembler_OvershootRetainsTailForNextFrame(t *testing.T) {
	hdr1 := buildFrameHeader(t, 0)
	hdr2 := buildFrameHeader(t, 0)
	combined := append(append([]byte{}, hdr1...), hdr2...)

	source := &fakeSource{items: []sourceItem{{pkt: buildPacket(0, combined)}}}

	a := newAssembler()
	first, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, first.ChecksumValid)

	second, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, second.ChecksumValid)
}

func TestAssembler_TruncatedFrameAtEndOfStream(t *testing.T) {
	extra := 3000
	hdr := buildFrameHeader(t, uint32(extra))

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, hdr)},
		{pkt: buildPacket(1, make([]byte, 100))}, // far short of the declared length
	}}

	a := newAssembler()
	truncated := false
	_, err := a.Next(source, nil, func() { truncated = true })

	require.Error(t, err)
	require.True(t, truncated)
}

func TestAssembler_ChecksumFailureDiscardsAndResumesSeeking(t *testing.T) {
	bad := buildFrameHeader(t, 0)
	bad[100] ^= 0xFF // poison the header after the checksum was computed

	good := buildFrameHeader(t, 0)

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, bad)},
		{pkt: buildPacket(1, good)},
	}}

	a := newAssembler()
	var corruptNames []string
	frame, err := a.Next(source, func(n string) { corruptNames = append(corruptNames, n) }, nil)

	require.NoError(t, err)
	require.True(t, frame.ChecksumValid)
	require.Len(t, corruptNames, 1)
}

func TestAssembler_SpuriousMarkerInsideCarvedFrameAbortsAndResumes(t *testing.T) {
	// Build a header whose declared product length carves a region that
	// happens to contain a second copy of the sync marker (simulating a
	// framing defect), followed by a genuinely valid frame.
	spurious := buildFrameHeader(t, 100)
	marker := config.FrameHeaderFormatV1.SyncMarker()
	copy(spurious[50:54], marker[:])
	// Recompute the checksum so decode would otherwise succeed; this
	// path never reaches the decoder since the spurious marker aborts
	// the candidate first.
	binary.LittleEndian.PutUint32(spurious[framehdr.HeaderSize-4:framehdr.HeaderSize], framehdr.ComputeChecksum(spurious))

	good := buildFrameHeader(t, 0)

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, append(append([]byte{}, spurious...), make([]byte, 150)...))},
		{pkt: buildPacket(1, good)},
	}}

	a := newAssembler()
	frame, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, frame.ChecksumValid)
}

func TestAssembler_MarkerSplitAcrossPacketBoundary(t *testing.T) {
	hdr := buildFrameHeader(t, 0)

	source := &fakeSource{items: []sourceItem{
		{pkt: buildPacket(0, hdr[:2])},
		{pkt: buildPacket(1, hdr[2:])},
	}}

	a := newAssembler()
	frame, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, frame.ChecksumValid)
}

// TestAssembler_ConsecutiveFrameSyncMarkerDistanceMatchesSize is the
// optional consistency assertion from find_all_sync_words.py: for two
// consecutive non-corrupt frames carved from one contiguous stream, the
// byte distance between their sync markers must equal the first frame's
// total size.
func TestAssembler_ConsecutiveFrameSyncMarkerDistanceMatchesSize(t *testing.T) {
	hdr1 := buildFrameHeader(t, 0)
	hdr2 := buildFrameHeader(t, 0)
	combined := append(append([]byte{}, hdr1...), hdr2...)

	source := &fakeSource{items: []sourceItem{{pkt: buildPacket(0, combined)}}}

	a := newAssembler()
	first, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, first.ChecksumValid)

	second, err := a.Next(source, nil, nil)
	require.NoError(t, err)
	require.True(t, second.ChecksumValid)

	marker := config.FrameHeaderFormatV1.SyncMarker()
	firstIdx := bytes.Index(combined, marker[:])
	require.GreaterOrEqual(t, firstIdx, 0)
	secondIdx := bytes.Index(combined[firstIdx+4:], marker[:])
	require.GreaterOrEqual(t, secondIdx, 0)
	secondIdx += firstIdx + 4

	require.Equal(t, len(first.Bytes), secondIdx-firstIdx)
}

func TestAssembler_EndOfStreamDuringSeekPropagates(t *testing.T) {
	source := &fakeSource{}
	a := newAssembler()
	_, err := a.Next(source, nil, nil)
	require.ErrorIs(t, err, packet.ErrEndOfStream)
}
