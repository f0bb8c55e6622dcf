// Package framehdr implements FrameDecoder: parsing of the 1280-byte
// frame header, checksum verification, ROIC instrument-mode
// classification, GPS timing derivation, and frame naming.
package framehdr

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
)

// HeaderSize is the fixed size in bytes of a frame header.
const HeaderSize = 1280

// checksumWords is the number of little-endian 32-bit words that make up
// the header, including the trailing checksum word itself.
const checksumWords = HeaderSize / 4

// UnknownInstrumentMode is returned when a frame's ROIC register block
// does not match any known template.
const UnknownInstrumentMode = "UNKNOWN"

// GPSEpoch is the start of GPS time, used by DefaultGPSToUTC.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// DefaultGPSToUTC converts nanoseconds since the GPS epoch to an
// approximate UTC time, ignoring the GPS/UTC leap-second offset.
// Leap-second-aware conversion is delegated to an external time library
// (out of scope here); callers needing an authoritative value should
// pass their own converter to NewDecoder.
func DefaultGPSToUTC(nanos int64) time.Time {
	return GPSEpoch.Add(time.Duration(nanos))
}

// ROICTemplate names one closed-set instrument-mode register pattern.
type ROICTemplate struct {
	Name    string
	Pattern [66]byte
}

// Decoder parses frame headers according to a configured header-format
// offset table and ROIC template set.
type Decoder struct {
	format    config.FrameHeaderFormat
	templates map[[66]byte]string
	gpsToUTC  func(int64) time.Time
}

// NewDecoder returns a Decoder for the given header format. If
// templates is nil, DefaultTemplates() is used. If gpsToUTC is nil,
// DefaultGPSToUTC is used.
func NewDecoder(format config.FrameHeaderFormat, templates []ROICTemplate, gpsToUTC func(int64) time.Time) *Decoder {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if gpsToUTC == nil {
		gpsToUTC = DefaultGPSToUTC
	}
	byPattern := make(map[[66]byte]string, len(templates))
	for _, t := range templates {
		byPattern[t.Pattern] = t.Name
	}
	return &Decoder{format: format, templates: byPattern, gpsToUTC: gpsToUTC}
}

// Frame is the decoded representation of one assembled frame.
type Frame struct {
	Bytes   []byte
	Corrupt bool

	DataSize                uint32
	FrameCount1              uint64
	FrameCount2              uint64
	CompressionFlag          bool
	ProcessedFlag            bool
	DataCollectionID         uint32
	AcquisitionStatus        uint32
	FirstFrameFlag           bool
	CloudyFlag               bool
	LineTimestamp            uint32
	LineCount                uint64
	ROICBlock                [66]byte
	InstrumentMode           string
	FrameCountInAcquisition  uint64
	SolarZenith              uint32
	PlannedNumFrames         uint32
	OSTimeTimestamp          uint32
	OSTime                   uint64
	NumBands                 uint16
	CoaddFlag                bool
	StoredChecksum           uint32
	ChecksumValid            bool
	StartTimeGPSNanos        int64
	Name                     string
}

// Decode parses a frame's bytes. corrupt marks whether the assembler
// already knows this frame was assembled under loss or splicing; it is
// folded into the frame's name per §4.6 ("corrupt frames use the same
// fields but with acquisition status overridden to the digit 9").
func (d *Decoder) Decode(buf []byte, corrupt bool) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("sdp: frame buffer too short: %d bytes, need at least %d", len(buf), HeaderSize)
	}
	hdr := buf[:HeaderSize]
	offsets := d.format.Offsets()

	f := &Frame{
		Bytes:             buf,
		Corrupt:           corrupt,
		DataSize:          binary.LittleEndian.Uint32(hdr[4:8]),
		FrameCount1:       binary.LittleEndian.Uint64(hdr[8:16]),
		FrameCount2:       binary.LittleEndian.Uint64(hdr[16:24]),
		CompressionFlag:   hdr[24]&0x01 != 0,
		ProcessedFlag:     hdr[24]&0x04 != 0,
		DataCollectionID:  binary.LittleEndian.Uint32(hdr[28:32]),
		AcquisitionStatus: binary.LittleEndian.Uint32(hdr[32:36]),
		LineTimestamp:     binary.LittleEndian.Uint32(hdr[36:40]),
		LineCount:         binary.LittleEndian.Uint64(hdr[44:52]),
	}
	f.FirstFrameFlag = f.AcquisitionStatus&0x01 != 0
	f.CloudyFlag = f.AcquisitionStatus&0x04 != 0
	copy(f.ROICBlock[:], hdr[108:174])
	f.InstrumentMode = d.classify(f.ROICBlock)
	f.FrameCountInAcquisition = binary.LittleEndian.Uint64(hdr[810:818])
	f.SolarZenith = binary.LittleEndian.Uint32(hdr[822:826])

	f.PlannedNumFrames = binary.LittleEndian.Uint32(hdr[offsets.PlannedNumFrames : offsets.PlannedNumFrames+4])
	f.OSTimeTimestamp = binary.LittleEndian.Uint32(hdr[offsets.OSTimeTimestamp : offsets.OSTimeTimestamp+4])
	f.OSTime = binary.LittleEndian.Uint64(hdr[offsets.OSTime : offsets.OSTime+8])
	f.NumBands = binary.LittleEndian.Uint16(hdr[offsets.NumBands : offsets.NumBands+2])
	f.CoaddFlag = hdr[offsets.CoaddFlagByte]&0x01 != 0

	f.StoredChecksum = binary.LittleEndian.Uint32(hdr[HeaderSize-4 : HeaderSize])
	f.ChecksumValid = validChecksum(hdr)

	f.StartTimeGPSNanos = startTimeGPSNanos(f.LineTimestamp, f.OSTimeTimestamp, int64(f.OSTime))
	f.Name = d.name(f)

	return f, nil
}

// classify looks up the ROIC register block against the closed set of
// named templates, returning UnknownInstrumentMode if none match.
func (d *Decoder) classify(block [66]byte) string {
	if name, ok := d.templates[block]; ok {
		return name
	}
	return UnknownInstrumentMode
}

// validChecksum implements the checksum law of §8 property 6: the sum
// of all 320 little-endian 32-bit header words (including the stored
// checksum word itself) must be zero modulo 2^32.
func validChecksum(hdr []byte) bool {
	var sum uint32
	for i := 0; i < checksumWords; i++ {
		sum += binary.LittleEndian.Uint32(hdr[i*4 : i*4+4])
	}
	return sum == 0
}

// ComputeChecksum returns the checksum value that belongs at the end of
// a header whose first 319 words are already populated: the two's
// complement of their sum.
func ComputeChecksum(hdr []byte) uint32 {
	var sum uint32
	for i := 0; i < checksumWords-1; i++ {
		sum += binary.LittleEndian.Uint32(hdr[i*4 : i*4+4])
	}
	return ^sum + 1
}

const counterWrap = uint64(1) << 32

// startTimeGPSNanos implements the timing derivation of §4.6: the
// instrument clock is a 32-bit free-running counter at 100kHz (10000ns
// per tick), snapshotted at an OS-time instant.
func startTimeGPSNanos(lineTimestamp, osTimeTimestamp uint32, osTimeNs int64) int64 {
	effectiveLT := uint64(lineTimestamp)
	if lineTimestamp < osTimeTimestamp {
		effectiveLT += counterWrap
	}
	delta := effectiveLT - uint64(osTimeTimestamp)
	return osTimeNs + int64(delta)*10000
}

// name renders the canonical frame identifier per §6. Corrupt frames
// replace the acquisition-status field with the digit 9.
func (d *Decoder) name(f *Frame) string {
	status := fmt.Sprintf("%d", f.AcquisitionStatus)
	if f.Corrupt {
		status = "9"
	}
	processed := 0
	if f.ProcessedFlag {
		processed = 1
	}
	utc := d.gpsToUTC(f.StartTimeGPSNanos)
	return fmt.Sprintf("%010d_%s_%05d_%05d_%s_%d",
		f.DataCollectionID,
		utc.Format("20060102t150405"),
		f.FrameCountInAcquisition,
		f.PlannedNumFrames,
		status,
		processed,
	)
}
