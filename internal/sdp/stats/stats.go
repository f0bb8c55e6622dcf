// Package stats implements StatsCollector: a pure data aggregator that
// tracks packet/frame/error counters and renders the human-readable
// processing report.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/sequence"
)

// Stats accumulates running counters and lists over the life of one
// depacketizer run. The zero value is ready to use.
type Stats struct {
	PacketsRead int
	BytesRead   int64

	InvalidPacketCount  int
	invalidFingerprints []sequence.Fingerprint

	SequenceErrorCount int
	missingFingerprints []sequence.Fingerprint

	TruncatedFrameCount int
	FramesEmitted       int
	corruptFrameNames   map[string]struct{}
}

// New returns an empty Stats collector.
func New() *Stats {
	return &Stats{corruptFrameNames: make(map[string]struct{})}
}

// OnPacketRead records one packet having been read from the stream.
func (s *Stats) OnPacketRead(pkt *packet.SpacePacket) {
	s.PacketsRead++
	s.BytesRead += int64(pkt.TotalSize())
}

// OnInvalidPacket records a CRC-invalid packet.
func (s *Stats) OnInvalidPacket(pkt *packet.SpacePacket) {
	s.InvalidPacketCount++
	s.invalidFingerprints = append(s.invalidFingerprints, sequence.Fingerprint{
		Coarse: pkt.CoarseTime(),
		Fine:   pkt.FineTime(),
		Seq:    pkt.SeqCount(),
	})
}

// OnSequenceError records a sequencer mismatch, enumerating its missing
// fingerprints into the running list.
func (s *Stats) OnSequenceError(mismatch *sequence.Mismatch) {
	s.SequenceErrorCount++
	s.missingFingerprints = append(s.missingFingerprints, mismatch.Missing...)
}

// OnFrameEmitted records one successfully emitted frame.
func (s *Stats) OnFrameEmitted() {
	s.FramesEmitted++
}

// OnTruncatedFrame records a frame that was cut short because the
// stream ended while filling it.
func (s *Stats) OnTruncatedFrame() {
	s.TruncatedFrameCount++
}

// OnCorruptFrame records a frame name into the corrupt-frame set.
func (s *Stats) OnCorruptFrame(name string) {
	if s.corruptFrameNames == nil {
		s.corruptFrameNames = make(map[string]struct{})
	}
	s.corruptFrameNames[name] = struct{}{}
}

// MissingSequenceCount returns the number of missing-sequence
// fingerprints recorded so far.
func (s *Stats) MissingSequenceCount() int {
	return len(s.missingFingerprints)
}

// CorruptFrameNames returns the corrupt-frame set, sorted
// lexicographically (equivalently, numerically, given the zero-padded
// name format).
func (s *Stats) CorruptFrameNames() []string {
	return s.sortedCorruptFrameNames()
}

func formatFingerprint(fp sequence.Fingerprint) string {
	return fmt.Sprintf("%010d_%03d_%05d", fp.Coarse, fp.Fine, fp.Seq)
}

func sortedFingerprints(fps []sequence.Fingerprint) []string {
	out := make([]string, len(fps))
	for i, fp := range fps {
		out[i] = formatFingerprint(fp)
	}
	sort.Strings(out)
	return out
}

func (s *Stats) sortedCorruptFrameNames() []string {
	out := make([]string, 0, len(s.corruptFrameNames))
	for name := range s.corruptFrameNames {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Report renders the plain-text processing report. Section titles match
// §6 exactly: "SDP PROCESSING STATS", "Total CCSDS Packets Read",
// "Total bytes read", "Total Frames Read", "Corrupt Frame Errors
// Encountered", "Invalid Packet Errors Encountered", "Packet Sequence
// Count Errors Encountered", "Total Missing Packet Sequence Count
// Values".
func (s *Stats) Report() string {
	var b strings.Builder

	fmt.Fprintln(&b, "SDP PROCESSING STATS")
	fmt.Fprintln(&b, "--------------------")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Total CCSDS Packets Read: %d\n", s.PacketsRead)
	fmt.Fprintf(&b, "Total bytes read: %d\n", s.BytesRead)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Total Frames Read: %d\n", s.FramesEmitted)
	fmt.Fprintf(&b, "Truncated Frame Errors Encountered: %d\n", s.TruncatedFrameCount)
	fmt.Fprintln(&b)

	corrupt := s.sortedCorruptFrameNames()
	fmt.Fprintf(&b, "Corrupt Frame Errors Encountered: %d\n", len(corrupt))
	fmt.Fprintln(&b, strings.Join(corrupt, "\n"))
	fmt.Fprintln(&b)

	invalid := sortedFingerprints(s.invalidFingerprints)
	fmt.Fprintf(&b, "Invalid Packet Errors Encountered: %d\n", s.InvalidPacketCount)
	fmt.Fprintln(&b, "Invalid Packet Values:")
	fmt.Fprintln(&b, strings.Join(invalid, "\n"))
	fmt.Fprintln(&b)

	missing := sortedFingerprints(s.missingFingerprints)
	fmt.Fprintf(&b, "Packet Sequence Count Errors Encountered: %d\n", s.SequenceErrorCount)
	fmt.Fprintf(&b, "Total Missing Packet Sequence Count Values: %d\n", len(missing))
	fmt.Fprintln(&b, "Missing Packet Sequence Values:")
	fmt.Fprintln(&b, strings.Join(missing, "\n"))

	return b.String()
}
