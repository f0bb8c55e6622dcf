// Package syncscan implements SyncScanner: a sliding 4-byte marker search
// over the logical concatenation of successive packets' stripped payload
// bytes, retaining only a 3-byte partial tail across packet boundaries.
package syncscan

import "bytes"

// MarkerLen is the length in bytes of the frame sync marker.
const MarkerLen = 4

// Scanner searches for a fixed 4-byte marker across packet-boundary-
// spanning payload data.
type Scanner struct {
	marker [4]byte
}

// New returns a Scanner configured for the given sync marker.
func New(marker [4]byte) *Scanner {
	return &Scanner{marker: marker}
}

// Result is the outcome of one Scan call.
type Result struct {
	// Found reports whether the marker was located.
	Found bool
	// Index is the marker's offset within Joined. Valid only if Found.
	Index int
	// Joined is partial concatenated with data. Valid only if Found.
	Joined []byte
	// Partial holds the bytes to retain for the next Scan call when the
	// marker was not found: the last (up to) 3 bytes of partial+data.
	Partial []byte
}

// Scan searches for the marker across partial (bytes retained from the
// previous call) concatenated with data (the next packet's stripped
// payload). If found, Joined holds the full concatenation and Index its
// offset. If not found, Partial holds the last 3 bytes of the
// concatenation, to be passed as partial on the next call.
func (s *Scanner) Scan(partial, data []byte) Result {
	joined := make([]byte, 0, len(partial)+len(data))
	joined = append(joined, partial...)
	joined = append(joined, data...)

	if idx := bytes.Index(joined, s.marker[:]); idx >= 0 {
		return Result{Found: true, Index: idx, Joined: joined}
	}

	if len(joined) <= MarkerLen-1 {
		return Result{Found: false, Partial: joined}
	}
	return Result{Found: false, Partial: joined[len(joined)-(MarkerLen-1):]}
}
