// Package assemble implements FrameAssembler: the four-macro-state
// machine (SEEK_MARKER, HEADER_SHORT, FILL, OVERSHOOT_CHECK) that turns
// a sequencer-gated packet stream into carved frame byte buffers.
package assemble

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/framehdr"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/sequence"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/syncscan"
)

// ErrTruncatedFrame wraps packet.ErrEndOfStream when the stream ends
// with a frame only partially filled.
var ErrTruncatedFrame = errors.New("sdp: stream ended while filling a frame")

// PacketSource supplies the next sequencer-accepted packet. mismatch is
// non-nil when the returned packet arrived out of order (state has
// already advanced past the gap); err is packet.ErrEndOfStream when the
// stream is exhausted.
type PacketSource interface {
	Next() (pkt *packet.SpacePacket, mismatch *sequence.Mismatch, err error)
}

// Decoder decodes a candidate frame's bytes. framehdr.Decoder implements
// this.
type Decoder interface {
	Decode(buf []byte, corrupt bool) (*framehdr.Frame, error)
}

// Assembler implements the FrameAssembler state machine. It is not safe
// for concurrent use; the core is single-threaded per spec §5.
type Assembler struct {
	packetFormat config.PacketFormat
	marker       [4]byte
	decoder      Decoder
	scanner      *syncscan.Scanner

	scanPartial []byte // <=3 bytes retained across SEEK_MARKER scans
	pendingData []byte // leftover bytes from a FILL overshoot, fed as the next SEEK_MARKER's data
}

// New returns an Assembler for the given packet/frame format, using
// decoder to validate each candidate frame's checksum.
func New(packetFormat config.PacketFormat, frameFormat config.FrameHeaderFormat, decoder Decoder) *Assembler {
	marker := frameFormat.SyncMarker()
	return &Assembler{
		packetFormat: packetFormat,
		marker:       marker,
		decoder:      decoder,
		scanner:      syncscan.New(marker),
	}
}

// Next drives the state machine until one frame is decoded and accepted,
// or the stream ends. Recoverable conditions (spurious marker,
// checksum failure on an otherwise-clean frame) are handled internally
// by resuming the search; onCorruptFrameName and onTruncated are called
// for the caller to update its stats.
func (a *Assembler) Next(source PacketSource, onCorruptFrameName func(string), onTruncated func()) (*framehdr.Frame, error) {
	for {
		frameBytes, corrupt, err := a.seekAndFill(source, onTruncated)
		if err != nil {
			return nil, err
		}
		if frameBytes == nil {
			// Spurious marker: search aborted, already reset; try again.
			continue
		}

		frame, derr := a.decoder.Decode(frameBytes, corrupt)
		if derr != nil {
			return nil, fmt.Errorf("sdp: decoding candidate frame: %w", derr)
		}

		if !corrupt && !frame.ChecksumValid {
			// Header corruption detected on an otherwise clean frame:
			// discard and resume seeking, per §4.5/§7.
			if onCorruptFrameName != nil {
				onCorruptFrameName(frame.Name)
			}
			a.pendingData = nil
			a.scanPartial = nil
			continue
		}

		if corrupt && onCorruptFrameName != nil {
			onCorruptFrameName(frame.Name)
		}
		return frame, nil
	}
}

// seekAndFill runs SEEK_MARKER through FILL/OVERSHOOT_CHECK for one
// candidate frame. A nil frame with a nil error means a spurious marker
// aborted this attempt and the caller should retry from SEEK_MARKER.
func (a *Assembler) seekAndFill(source PacketSource, onTruncated func()) (frame []byte, corrupt bool, err error) {
	for {
		var data []byte
		if a.pendingData != nil {
			data = a.pendingData
			a.pendingData = nil
		} else {
			pkt, mismatch, rerr := source.Next()
			if rerr != nil {
				return nil, false, rerr
			}
			if mismatch != nil {
				// While seeking, a mismatch discards any held scan
				// partial; the new packet starts a fresh search.
				a.scanPartial = nil
			}
			data = pkt.Data()
		}

		res := a.scanner.Scan(a.scanPartial, data)
		if !res.Found {
			a.scanPartial = res.Partial
			continue
		}
		a.scanPartial = nil
		return a.fill(res.Joined[res.Index:], source, onTruncated)
	}
}

// fill implements HEADER_SHORT/FILL/OVERSHOOT_CHECK: it accumulates
// packet data, computing the expected frame length as soon as 8 bytes
// are available, until the frame is carved exactly or with overshoot.
func (a *Assembler) fill(initial []byte, source PacketSource, onTruncated func()) (frame []byte, corrupt bool, err error) {
	accumulated := initial
	expectedKnown := false
	expectedLen := 0

	computeExpected := func() {
		if expectedKnown || len(accumulated) < 8 {
			return
		}
		productLen := binary.LittleEndian.Uint32(accumulated[4:8])
		expectedLen = int(productLen) + framehdr.HeaderSize
		if a.packetFormat == config.PacketFormatWide {
			if rem := expectedLen % 16; rem != 0 {
				expectedLen += 16 - rem
			}
		}
		expectedKnown = true
	}
	computeExpected()

	for {
		if expectedKnown {
			switch {
			case len(accumulated) == expectedLen:
				return accumulated, corrupt, nil
			case len(accumulated) > expectedLen:
				candidate := accumulated[:expectedLen]
				tail := append([]byte{}, accumulated[expectedLen:]...)

				if idx := bytes.Index(candidate[4:], a.marker[:]); idx >= 0 {
					// A second marker inside the carved region: the
					// frame header is internally inconsistent.
					return nil, false, nil
				}

				a.pendingData = tail
				return candidate, corrupt, nil
			}
		}

		pkt, mismatch, rerr := source.Next()
		if rerr != nil {
			if onTruncated != nil {
				onTruncated()
			}
			return nil, false, fmt.Errorf("%w: %w", ErrTruncatedFrame, rerr)
		}

		if mismatch != nil {
			corrupt = true
			a.spliceGap(&accumulated, len(mismatch.Missing), expectedKnown, expectedLen)
			computeExpected()
		}

		accumulated = append(accumulated, pkt.Data()...)
		computeExpected()
	}
}

// spliceGap inserts zero-filled synthetic packets to cover a sequence
// gap discovered mid-fill, per §4.5 FILL case 3: one packet per missing
// sequence count, each sized min(remaining, max payload), stopping early
// if the frame would otherwise overshoot.
func (a *Assembler) spliceGap(accumulated *[]byte, missingCount int, expectedKnown bool, expectedLen int) {
	maxPayload := a.packetFormat.MaxPayload()
	for i := 0; i < missingCount; i++ {
		if expectedKnown {
			remaining := expectedLen - len(*accumulated)
			if remaining <= 0 {
				return
			}
			fillSize := maxPayload
			if fillSize > remaining {
				fillSize = remaining
			}
			*accumulated = append(*accumulated, make([]byte, fillSize)...)
			continue
		}
		*accumulated = append(*accumulated, make([]byte, maxPayload)...)
	}
}
