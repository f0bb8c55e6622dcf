package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := EmptyPipelineConfig()
	require.Equal(t, PacketFormatNarrow, cfg.GetPacketFormat())
	require.Equal(t, FrameHeaderFormatV1, cfg.GetFrameHeaderFormat())
}

func TestValidate_RejectsUnknownValues(t *testing.T) {
	bad := "bogus"
	cfg := &PipelineConfig{PacketFormat: &bad}
	require.Error(t, cfg.Validate())

	cfg2 := &PipelineConfig{FrameHeaderFormat: &bad}
	require.Error(t, cfg2.Validate())
}

func TestLoadPipelineConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	doc := map[string]string{
		"packet_format":       "wide",
		"frame_header_format": "v1.5",
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)
	require.Equal(t, PacketFormatWide, cfg.GetPacketFormat())
	require.Equal(t, FrameHeaderFormatV1_5, cfg.GetFrameHeaderFormat())
}

func TestLoadPipelineConfig_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadPipelineConfig(path)
	require.Error(t, err)
}

func TestPacketFormat_WireParameters(t *testing.T) {
	require.Equal(t, 11, PacketFormatNarrow.SecondaryHeaderLen())
	require.Equal(t, 1479, PacketFormatNarrow.MaxPayload())
	require.Equal(t, 13, PacketFormatWide.SecondaryHeaderLen())
	require.Equal(t, 1477, PacketFormatWide.MaxPayload())
}

func TestFrameHeaderFormat_SyncMarker(t *testing.T) {
	require.Equal(t, [4]byte{0x81, 0xFF, 0xFF, 0x81}, FrameHeaderFormatV1.SyncMarker())
	require.Equal(t, [4]byte{0x82, 0xFF, 0xFF, 0x81}, FrameHeaderFormatV1_5.SyncMarker())
}

func TestFrameHeaderFormat_Offsets(t *testing.T) {
	v1 := FrameHeaderFormatV1.Offsets()
	require.Equal(t, 922, v1.PlannedNumFrames)
	require.Equal(t, 926, v1.OSTimeTimestamp)
	require.Equal(t, 930, v1.OSTime)
	require.Equal(t, 938, v1.NumBands)
	require.Equal(t, 1010, v1.CoaddFlagByte)

	v15 := FrameHeaderFormatV1_5.Offsets()
	require.Equal(t, 1002, v15.PlannedNumFrames)
	require.Equal(t, 1012, v15.OSTimeTimestamp)
	require.Equal(t, 1016, v15.OSTime)
	require.Equal(t, 1024, v15.NumBands)
	require.Equal(t, 1096, v15.CoaddFlagByte)
}
