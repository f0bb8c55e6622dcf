// Package sequence implements PacketSequencer: monotonic sequence-count
// tracking modulo 16384, gap detection, and overlap/duplicate rejection.
package sequence

import (
	"fmt"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
)

// Fingerprint uniquely identifies a packet for overlap/duplicate
// detection: its secondary-header coarse/fine time plus its sequence
// count.
type Fingerprint struct {
	Coarse uint32
	Fine   uint8
	Seq    uint16
}

func fingerprintOf(pkt *packet.SpacePacket) Fingerprint {
	return Fingerprint{Coarse: pkt.CoarseTime(), Fine: pkt.FineTime(), Seq: pkt.SeqCount()}
}

// Mismatch is raised when an accepted packet's sequence count does not
// equal the expected next value. It is a recovery signal, not a fatal
// error: the sequencer has already advanced its state to Current by the
// time it is returned.
type Mismatch struct {
	Current  *packet.SpacePacket
	Expected uint16
	// Missing lists the fingerprints between Expected and Current's
	// sequence count (exclusive), wrapping at SeqCountMod, labeled with
	// Current's coarse/fine time.
	Missing []Fingerprint
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("sdp: sequence mismatch: expected seq %d, got %d", m.Expected, m.Current.SeqCount())
}

// maxSeenEntries bounds the seen-packet set so a long-running stream
// cannot grow it unboundedly; spec §5 permits pruning entries older than
// a window several times larger than any realistic overlap region.
const maxSeenEntries = 8192

// Sequencer enforces monotonic sequence-count ordering on an otherwise
// unordered stream of accepted (CRC-valid) packets.
type Sequencer struct {
	started      bool
	lastAccepted uint16

	seen    map[Fingerprint]struct{}
	seenLog []Fingerprint // insertion order, paired with seen for bounded eviction
}

// New returns an empty Sequencer with no baseline yet established.
func New() *Sequencer {
	return &Sequencer{seen: make(map[Fingerprint]struct{})}
}

// Outcome describes what the caller should do with a packet handed to
// Next.
type Outcome int

const (
	// OutcomeAccept means the packet is in-order (or the first packet)
	// and should be treated as the next byte of the stream.
	OutcomeAccept Outcome = iota
	// OutcomeDrop means the packet is an overlap duplicate and must be
	// silently discarded; sequencer state is unchanged.
	OutcomeDrop
)

// Next evaluates one CRC-valid packet against the sequencer's state. It
// returns the outcome and, when the packet was accepted out of order, a
// non-nil Mismatch describing the gap. State is updated before Mismatch
// is returned, per §4.3 step 6.
func (s *Sequencer) Next(pkt *packet.SpacePacket) (Outcome, *Mismatch) {
	fp := fingerprintOf(pkt)

	if !s.started {
		s.started = true
		s.remember(fp)
		s.lastAccepted = pkt.SeqCount()
		return OutcomeAccept, nil
	}

	expected := nextSeq(s.lastAccepted)
	if pkt.SeqCount() == expected {
		s.remember(fp)
		s.lastAccepted = pkt.SeqCount()
		return OutcomeAccept, nil
	}

	if s.isSeen(fp) {
		return OutcomeDrop, nil
	}

	missing := missingFingerprints(expected, pkt.SeqCount(), fp.Coarse, fp.Fine)
	s.remember(fp)
	s.lastAccepted = pkt.SeqCount()

	return OutcomeAccept, &Mismatch{
		Current:  pkt,
		Expected: expected,
		Missing:  missing,
	}
}

func nextSeq(cur uint16) uint16 {
	return uint16((uint32(cur) + 1) % packet.SeqCountMod)
}

func missingFingerprints(expected, current uint16, coarse uint32, fine uint8) []Fingerprint {
	var out []Fingerprint
	if current > expected {
		for i := expected; i < current; i++ {
			out = append(out, Fingerprint{Coarse: coarse, Fine: fine, Seq: i})
		}
		return out
	}
	// Wrapped: expected..SeqCountMod-1, then 0..current-1.
	for i := int(expected); i < packet.SeqCountMod; i++ {
		out = append(out, Fingerprint{Coarse: coarse, Fine: fine, Seq: uint16(i)})
	}
	for i := uint16(0); i < current; i++ {
		out = append(out, Fingerprint{Coarse: coarse, Fine: fine, Seq: i})
	}
	return out
}

func (s *Sequencer) isSeen(fp Fingerprint) bool {
	_, ok := s.seen[fp]
	return ok
}

func (s *Sequencer) remember(fp Fingerprint) {
	if _, ok := s.seen[fp]; ok {
		return
	}
	s.seen[fp] = struct{}{}
	s.seenLog = append(s.seenLog, fp)
	if len(s.seenLog) > maxSeenEntries {
		evict := s.seenLog[0]
		s.seenLog = s.seenLog[1:]
		delete(s.seen, evict)
	}
}
