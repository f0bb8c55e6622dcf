package syncscan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var marker = [4]byte{0x81, 0xFF, 0xFF, 0x81}

func TestScan_FoundWithinSinglePacket(t *testing.T) {
	s := New(marker)
	data := append([]byte{0x00, 0x00}, marker[:]...)
	data = append(data, 0xAA)

	res := s.Scan(nil, data)
	require.True(t, res.Found)
	require.Equal(t, 2, res.Index)
}

func TestScan_NotFound_RetainsLastThreeBytes(t *testing.T) {
	s := New(marker)
	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55}

	res := s.Scan(nil, data)
	require.False(t, res.Found)
	require.Equal(t, []byte{0x33, 0x44, 0x55}, res.Partial)
}

func TestScan_MarkerSplitAcrossBoundary_1and3(t *testing.T) {
	s := New(marker)
	first := []byte{0x00, 0x00, 0x00, marker[0]}
	res1 := s.Scan(nil, first)
	require.False(t, res1.Found)
	require.Equal(t, []byte{0x00, 0x00, marker[0]}, res1.Partial)

	second := marker[1:]
	res2 := s.Scan(res1.Partial, second)
	require.True(t, res2.Found)
	require.Equal(t, 2, res2.Index)
}

func TestScan_MarkerSplitAcrossBoundary_2and2(t *testing.T) {
	s := New(marker)
	first := []byte{0x00, marker[0], marker[1]}
	res1 := s.Scan(nil, first)
	require.False(t, res1.Found)

	second := marker[2:]
	res2 := s.Scan(res1.Partial, second)
	require.True(t, res2.Found)
}

func TestScan_MarkerSplitAcrossBoundary_3and1(t *testing.T) {
	s := New(marker)
	first := marker[0:3]
	res1 := s.Scan(nil, first)
	require.False(t, res1.Found)

	second := marker[3:]
	res2 := s.Scan(res1.Partial, second)
	require.True(t, res2.Found)
}

func TestScan_ShortDataRetainedWhole(t *testing.T) {
	s := New(marker)
	res := s.Scan(nil, []byte{0x01, 0x02})
	require.False(t, res.Found)
	require.Equal(t, []byte{0x01, 0x02}, res.Partial)
}
