// Package depacketizer wires together the packet, sequence, syncscan,
// assemble, framehdr, and stats layers into the single pull-based
// Depacketizer: a lazy sequence of decoded frames over a finite byte
// stream, analogous to bufio.Scanner or database/sql.Rows.
package depacketizer

import (
	"io"

	"github.com/google/uuid"

	"github.com/emit-sds/l1a-depacketizer/internal/monitoring"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/assemble"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/framehdr"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/sequence"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/stats"
)

// packetSource adapts a packet.Reader and sequence.Sequencer into
// assemble.PacketSource, recording every packet-level and sequence-level
// event into Stats as it goes.
type packetSource struct {
	reader    *packet.Reader
	sequencer *sequence.Sequencer
	stats     *stats.Stats
}

// Next implements assemble.PacketSource: CRC-invalid packets are
// recorded and silently skipped, overlap duplicates are dropped, and
// every sequence mismatch is recorded before being returned to the
// caller.
func (s *packetSource) Next() (*packet.SpacePacket, *sequence.Mismatch, error) {
	for {
		pkt, err := s.reader.ReadPacket()
		if err != nil {
			return nil, nil, err
		}

		if !pkt.IsValid() {
			s.stats.OnInvalidPacket(pkt)
			monitoring.Logf("sdp: dropping CRC-invalid packet, seq=%d", pkt.SeqCount())
			continue
		}
		s.stats.OnPacketRead(pkt)

		outcome, mismatch := s.sequencer.Next(pkt)
		if outcome == sequence.OutcomeDrop {
			monitoring.Logf("sdp: dropping duplicate/overlapping packet, seq=%d", pkt.SeqCount())
			continue
		}
		if mismatch != nil {
			s.stats.OnSequenceError(mismatch)
			monitoring.Logf("sdp: sequence mismatch: got seq=%d, expected seq=%d, %d missing",
				mismatch.Current.SeqCount(), mismatch.Expected, len(mismatch.Missing))
		}
		return pkt, mismatch, nil
	}
}

// Depacketizer is the top-level pull iterator over a CCSDS packet
// stream. It is not safe for concurrent use.
type Depacketizer struct {
	source    *packetSource
	assembler *assemble.Assembler
	stats     *stats.Stats
	runID     string
}

// New wires a Depacketizer around r, reading packets and decoding frames
// according to cfg.
func New(r io.Reader, cfg *config.PipelineConfig) *Depacketizer {
	packetFormat := cfg.GetPacketFormat()
	frameFormat := cfg.GetFrameHeaderFormat()

	s := stats.New()
	decoder := framehdr.NewDecoder(frameFormat, nil, nil)

	return &Depacketizer{
		source: &packetSource{
			reader:    packet.NewReader(r, packetFormat),
			sequencer: sequence.New(),
			stats:     s,
		},
		assembler: assemble.New(packetFormat, frameFormat, decoder),
		stats:     s,
		runID:     uuid.New().String(),
	}
}

// Stats returns the running StatsCollector, live-updated as Next is
// called.
func (d *Depacketizer) Stats() *stats.Stats { return d.stats }

// RunID returns this run's generated identifier.
func (d *Depacketizer) RunID() string { return d.runID }

// Next returns the next decoded frame. It returns packet.ErrEndOfStream
// (check with errors.Is) once the underlying stream is exhausted with no
// frame in progress.
func (d *Depacketizer) Next() (*framehdr.Frame, error) {
	onCorrupt := func(name string) {
		d.stats.OnCorruptFrame(name)
		monitoring.Logf("sdp: corrupt frame %s", name)
	}
	onTruncated := func() {
		d.stats.OnTruncatedFrame()
		monitoring.Logf("sdp: stream ended mid-frame")
	}

	frame, err := d.assembler.Next(d.source, onCorrupt, onTruncated)
	if err != nil {
		return nil, err
	}
	d.stats.OnFrameEmitted()
	return frame, nil
}
