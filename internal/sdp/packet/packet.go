// Package packet implements PacketReader and PacketValidator: parsing of
// CCSDS space packets from a byte stream and CRC-32 validation of their
// payload.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
)

// ErrEndOfStream is returned by Reader.ReadPacket when the input stream
// produced fewer than 6 header bytes.
var ErrEndOfStream = errors.New("sdp: end of stream")

// SeqFlags is the 2-bit sequence-flags field of the primary header.
type SeqFlags uint8

const (
	SeqFlagsContinuation SeqFlags = 0
	SeqFlagsFirst        SeqFlags = 1
	SeqFlagsLast         SeqFlags = 2
	SeqFlagsUnsegmented  SeqFlags = 3
)

// SeqCountMod is the modulus of the 14-bit sequence-count field.
const SeqCountMod = 16384

// SpacePacket represents one unit read from the telemetry byte stream: a
// 6-byte primary header plus a body containing the secondary header, real
// data, CRC trailer, and (wide format only) trailing garbage.
type SpacePacket struct {
	Format config.PacketFormat

	// Header holds the 6 raw primary-header bytes.
	Header [6]byte

	// Body holds the DataLength()+1 bytes following the primary header:
	// secondary header, payload, CRC, and any garbage.
	Body []byte
}

// Version returns the 3-bit packet version field.
func (p *SpacePacket) Version() uint8 {
	return (p.Header[0] & 0xE0) >> 5
}

// Type returns the 1-bit packet type field.
func (p *SpacePacket) Type() uint8 {
	return (p.Header[0] & 0x10) >> 4
}

// SecHdrFlag returns whether the secondary-header-present flag is set.
func (p *SpacePacket) SecHdrFlag() bool {
	return p.Header[0]&0x08 != 0
}

// APID returns the 11-bit application process identifier.
func (p *SpacePacket) APID() uint16 {
	return binary.BigEndian.Uint16(p.Header[0:2]) & 0x07FF
}

// SeqFlags returns the 2-bit sequence-flags field.
func (p *SpacePacket) SeqFlags() SeqFlags {
	return SeqFlags((p.Header[2] & 0xC0) >> 6)
}

// SeqCount returns the 14-bit sequence count, modulo SeqCountMod.
func (p *SpacePacket) SeqCount() uint16 {
	return binary.BigEndian.Uint16(p.Header[2:4]) & 0x3FFF
}

// DataLength returns the raw "N-1"-encoded data-length field.
func (p *SpacePacket) DataLength() uint16 {
	return binary.BigEndian.Uint16(p.Header[4:6])
}

// TotalSize returns the total on-wire size of the packet: the 6-byte
// primary header plus DataLength()+1 body bytes.
func (p *SpacePacket) TotalSize() int {
	return 6 + int(p.DataLength()) + 1
}

// CoarseTime returns the 32-bit seconds-since-epoch field of the
// secondary header.
func (p *SpacePacket) CoarseTime() uint32 {
	if len(p.Body) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(p.Body[0:4])
}

// FineTime returns the 8-bit sub-second field of the secondary header,
// in units of 1/256s.
func (p *SpacePacket) FineTime() uint8 {
	if len(p.Body) < 5 {
		return 0
	}
	return p.Body[4]
}

// PadByteFlag reports whether the secondary header's pad-byte flag is
// set, meaning one byte of padding separates the real data from the CRC
// (narrow format only).
func (p *SpacePacket) PadByteFlag() bool {
	if len(p.Body) < 6 {
		return false
	}
	return p.Body[5]&0x80 != 0
}

// SubheaderID returns the 7-bit subheader id field.
func (p *SpacePacket) SubheaderID() uint8 {
	if len(p.Body) < 6 {
		return 0
	}
	return p.Body[5] & 0x7F
}

// RealDataLength returns the wide-format secondary header's 16-bit
// real-packet-data-length field. Zero for narrow-format packets.
func (p *SpacePacket) RealDataLength() uint16 {
	if p.Format != config.PacketFormatWide || len(p.Body) < 13 {
		return 0
	}
	return binary.BigEndian.Uint16(p.Body[11:13])
}

// crcRegion returns the bytes the trailing CRC was computed over, i.e.
// the real data (including any narrow-format pad byte), and the CRC
// trailer's position within Body.
func (p *SpacePacket) crcRegion() (region []byte, crcOffset int, ok bool) {
	secHdrLen := p.Format.SecondaryHeaderLen()
	if len(p.Body) < secHdrLen+4 {
		return nil, 0, false
	}
	if p.Format == config.PacketFormatWide {
		real := int(p.RealDataLength())
		end := secHdrLen + real
		if end+4 > len(p.Body) {
			return nil, 0, false
		}
		return p.Body[secHdrLen:end], end, true
	}
	end := len(p.Body) - 4
	return p.Body[secHdrLen:end], end, true
}

// CRC returns the 32-bit CRC trailer value stored in the packet.
func (p *SpacePacket) CRC() (uint32, bool) {
	_, offset, ok := p.crcRegion()
	if !ok || offset+4 > len(p.Body) {
		return 0, false
	}
	return binary.BigEndian.Uint32(p.Body[offset : offset+4]), true
}

// IsValid computes the IEEE/zlib CRC-32 over the validated region (see
// §4.2) and compares it against the stored trailer.
func (p *SpacePacket) IsValid() bool {
	region, offset, ok := p.crcRegion()
	if !ok || offset+4 > len(p.Body) {
		return false
	}
	stored := binary.BigEndian.Uint32(p.Body[offset : offset+4])
	return crc32.ChecksumIEEE(region) == stored
}

// Data returns the payload with secondary header, CRC, any narrow-format
// pad byte, and any wide-format garbage stripped.
func (p *SpacePacket) Data() []byte {
	region, _, ok := p.crcRegion()
	if !ok {
		return nil
	}
	if p.Format != config.PacketFormatWide && p.PadByteFlag() && len(region) > 0 {
		return region[:len(region)-1]
	}
	return region
}

// GarbageBytes returns the trailing garbage bytes following the CRC
// trailer. Always empty for narrow-format packets.
func (p *SpacePacket) GarbageBytes() []byte {
	_, offset, ok := p.crcRegion()
	if !ok || offset+4 > len(p.Body) {
		return nil
	}
	return p.Body[offset+4:]
}

// IsHeaderPacket reports whether this packet's data begins with the
// given 4-byte frame sync marker.
func (p *SpacePacket) IsHeaderPacket(marker [4]byte) bool {
	data := p.Data()
	if len(data) < 4 {
		return false
	}
	return data[0] == marker[0] && data[1] == marker[1] && data[2] == marker[2] && data[3] == marker[3]
}

// ProductLength returns bytes 4-7 of Data() interpreted as a 32-bit
// little-endian integer. Only meaningful when IsHeaderPacket is true.
func (p *SpacePacket) ProductLength() uint32 {
	data := p.Data()
	if len(data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(data[4:8])
}

// String renders the packet's primary header as a bit-string, mirroring
// the original ground-pipeline's per-packet debug log line. Call sites
// must gate this behind a verbose logger; it is never emitted
// unconditionally on the hot path.
func (p *SpacePacket) String() string {
	bits := make([]byte, 0, 6*9)
	for i, b := range p.Header {
		if i > 0 {
			bits = append(bits, ' ')
		}
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<uint(bit)) != 0 {
				bits = append(bits, '1')
			} else {
				bits = append(bits, '0')
			}
		}
	}
	return fmt.Sprintf("SDP primary header: %s", bits)
}

// Reader reads fixed-structure space packets one at a time from a byte
// stream.
type Reader struct {
	r      io.Reader
	format config.PacketFormat
}

// NewReader returns a Reader for the given stream and packet format.
func NewReader(r io.Reader, format config.PacketFormat) *Reader {
	return &Reader{r: r, format: format}
}

// ReadPacket reads one packet. It returns ErrEndOfStream when the stream
// produced fewer than 6 header bytes.
func (pr *Reader) ReadPacket() (*SpacePacket, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(pr.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("sdp: reading primary header: %w", err)
	}

	pkt := &SpacePacket{Format: pr.format, Header: hdr}
	bodyLen := int(pkt.DataLength()) + 1
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(pr.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("sdp: reading packet body (%d bytes): %w", bodyLen, err)
	}
	pkt.Body = body
	return pkt, nil
}
