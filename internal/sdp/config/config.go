// Package config carries the pipeline's tunable wire-format selections:
// which packet secondary-header variant the downlink uses, and which
// frame-header offset table applies. The schema mirrors the shape of the
// radar product's tuning config: optional pointer fields with Get*
// accessors supplying defaults, loaded from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PacketFormat selects the secondary-header layout a space packet uses.
type PacketFormat string

const (
	PacketFormatNarrow PacketFormat = "narrow"
	PacketFormatWide   PacketFormat = "wide"
)

// FrameHeaderFormat selects the sync marker and offset table a frame
// header uses.
type FrameHeaderFormat string

const (
	FrameHeaderFormatV1   FrameHeaderFormat = "v1"
	FrameHeaderFormatV1_5 FrameHeaderFormat = "v1.5"
)

// PipelineConfig is the root configuration for the depacketizer and frame
// decoder. Fields are optional pointers so that a partial JSON document
// leaves the rest at their documented defaults; use the Get* accessors
// rather than reading fields directly.
type PipelineConfig struct {
	PacketFormat      *string `json:"packet_format,omitempty"`
	FrameHeaderFormat *string `json:"frame_header_format,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields unset. Use
// LoadPipelineConfig to populate one from a JSON file.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The path
// must have a .json extension and the file must be under 1MB; fields
// omitted from the document retain their documented defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set fields hold a recognized value.
func (c *PipelineConfig) Validate() error {
	if c.PacketFormat != nil {
		switch PacketFormat(*c.PacketFormat) {
		case PacketFormatNarrow, PacketFormatWide:
		default:
			return fmt.Errorf("packet_format must be %q or %q, got %q", PacketFormatNarrow, PacketFormatWide, *c.PacketFormat)
		}
	}
	if c.FrameHeaderFormat != nil {
		switch FrameHeaderFormat(*c.FrameHeaderFormat) {
		case FrameHeaderFormatV1, FrameHeaderFormatV1_5:
		default:
			return fmt.Errorf("frame_header_format must be %q or %q, got %q", FrameHeaderFormatV1, FrameHeaderFormatV1_5, *c.FrameHeaderFormat)
		}
	}
	return nil
}

// GetPacketFormat returns the packet_format value or the default "narrow".
func (c *PipelineConfig) GetPacketFormat() PacketFormat {
	if c.PacketFormat == nil {
		return PacketFormatNarrow
	}
	return PacketFormat(*c.PacketFormat)
}

// GetFrameHeaderFormat returns the frame_header_format value or the
// default "v1".
func (c *PipelineConfig) GetFrameHeaderFormat() FrameHeaderFormat {
	if c.FrameHeaderFormat == nil {
		return FrameHeaderFormatV1
	}
	return FrameHeaderFormat(*c.FrameHeaderFormat)
}

// SecondaryHeaderLen returns the secondary-header length in bytes for this
// packet format: 11 for narrow, 13 for wide.
func (f PacketFormat) SecondaryHeaderLen() int {
	if f == PacketFormatWide {
		return 13
	}
	return 11
}

// MaxPayload returns the maximum payload length in bytes for this packet
// format: 1479 for narrow, 1477 for wide.
func (f PacketFormat) MaxPayload() int {
	if f == PacketFormatWide {
		return 1477
	}
	return 1479
}

// SyncMarker returns the 4-byte frame sync marker for this header format.
func (f FrameHeaderFormat) SyncMarker() [4]byte {
	if f == FrameHeaderFormatV1_5 {
		return [4]byte{0x82, 0xFF, 0xFF, 0x81}
	}
	return [4]byte{0x81, 0xFF, 0xFF, 0x81}
}

// Offsets holds the frame-header field offsets that vary between v1 and
// v1.5, per spec §6's offset table.
type Offsets struct {
	PlannedNumFrames int
	OSTimeTimestamp  int
	OSTime           int
	NumBands         int
	CoaddFlagByte    int
}

// Offsets returns the offset table for this header format.
func (f FrameHeaderFormat) Offsets() Offsets {
	if f == FrameHeaderFormatV1_5 {
		return Offsets{
			PlannedNumFrames: 1002,
			OSTimeTimestamp:  1012,
			OSTime:           1016,
			NumBands:         1024,
			CoaddFlagByte:    1096,
		}
	}
	return Offsets{
		PlannedNumFrames: 922,
		OSTimeTimestamp:  926,
		OSTime:           930,
		NumBands:         938,
		CoaddFlagByte:    1010,
	}
}
