package hexfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retarget/hexfile"
)

// TestSaveLoad_RoundTrip checks that a file with two regions crossing a
// 64KiB page boundary and a start address survives a Save/Load round trip
// byte for byte.
func TestSaveLoad_RoundTrip(t *testing.T) {
	f := hexfile.New()
	require.NoError(t, f.AddRegion(0x0000FFF0, bytes.Repeat([]byte{0xAA}, 32)))
	require.NoError(t, f.AddRegion(0x00100000, []byte{1, 2, 3, 4}))
	f.SetStartAddress(0x0000FFF0)

	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	got, err := hexfile.Load(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(got), "round-tripped file must describe the same regions and start address")
}

// TestLoad_BadChecksum_Rejected flips one hex digit in an otherwise valid
// data record so its checksum byte no longer sums the line to zero, and
// checks Load reports a HexError instead of silently accepting it.
func TestLoad_BadChecksum_Rejected(t *testing.T) {
	f := hexfile.New()
	require.NoError(t, f.AddRegion(0, []byte{1, 2, 3, 4}))
	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	corrupt := bytes.Replace(buf.Bytes(), []byte(":0400000001020304"), []byte(":0400000001020305"), 1)
	require.NotEqual(t, buf.Bytes(), corrupt, "the replacement must actually have hit the data record")

	_, err := hexfile.Load(bytes.NewReader(corrupt))
	require.Error(t, err)
	var hexErr *hexfile.HexError
	assert.ErrorAs(t, err, &hexErr)
}

// TestLoad_MissingEOF_Rejected checks that a stream with no End Of File
// record is rejected rather than silently treated as complete.
func TestLoad_MissingEOF_Rejected(t *testing.T) {
	_, err := hexfile.Load(bytes.NewReader([]byte(":02000000AABB99\n")))
	require.Error(t, err)
	var hexErr *hexfile.HexError
	assert.ErrorAs(t, err, &hexErr)
}

// TestAddRegion_Overlap_Rejected checks that adding a region whose byte
// range genuinely overlaps an existing one (not merely abuts it) is
// reported as an OverlapError rather than silently corrupting the image.
func TestAddRegion_Overlap_Rejected(t *testing.T) {
	f := hexfile.New()
	require.NoError(t, f.AddRegion(0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	err := f.AddRegion(0x1004, []byte{9, 9, 9, 9})
	require.Error(t, err)
	var overlap *hexfile.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, uint32(0x1000), overlap.A.Address)
	assert.Equal(t, uint32(0x1004), overlap.B.Address)
}

// TestAddRegion_Adjacent_Merges checks that two regions which exactly abut
// (no gap, no overlap) are merged into one contiguous region rather than
// rejected or kept as two separate entries.
func TestAddRegion_Adjacent_Merges(t *testing.T) {
	f := hexfile.New()
	require.NoError(t, f.AddRegion(0x2000, []byte{1, 2, 3, 4}))
	require.NoError(t, f.AddRegion(0x2004, []byte{5, 6, 7, 8}))

	require.Len(t, f.Regions, 1)
	assert.Equal(t, uint32(0x2000), f.Regions[0].Address)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.Regions[0].Data)
}
