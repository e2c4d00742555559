package userdir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNScansRejectsNegativeCount(t *testing.T) {
	d := &ScanDir{NRecordedScans: -1}
	_, err := d.NScans()
	assert.Error(t, err)
}

func TestSetScanAndScanRoundTrip(t *testing.T) {
	d := &ScanDir{}
	require.NoError(t, d.SetScan(0, "exp001_vlba", 1000, 2000))
	require.NoError(t, d.SetScan(1, "exp001_vlba_seg2", 3000, 4000))

	n, err := d.NScans()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	name, start, length, err := d.Scan(1)
	require.NoError(t, err)
	assert.Equal(t, "exp001_vlba_seg2", name)
	assert.EqualValues(t, 3000, start)
	assert.EqualValues(t, 4000, length)
	assert.EqualValues(t, 7000, d.RecordPointer)
}

func TestScanOutOfRangeFails(t *testing.T) {
	d := &ScanDir{}
	require.NoError(t, d.SetScan(0, "only", 0, 10))
	_, _, _, err := d.Scan(1)
	assert.Error(t, err)
}

func TestSetScanRejectsNameTooLong(t *testing.T) {
	d := &ScanDir{}
	long := make([]byte, ScanNameLen)
	for i := range long {
		long[i] = 'x'
	}
	err := d.SetScan(0, string(long), 0, 1)
	assert.Error(t, err)
}

// TestSanitizeResetsOutOfRangeDirectory is the S6 acceptance test: a
// raw blob whose NRecordedScans looks bogus must sanitize to an empty,
// fully in-range directory.
func TestSanitizeResetsOutOfRangeDirectory(t *testing.T) {
	d := &ScanDir{NRecordedScans: -1, NextScan: 5}
	d.Sanitize()

	n, err := d.NScans()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.EqualValues(t, 0, d.NextScan)
}

func TestSanitizeRejectsOutOfRangeNextScan(t *testing.T) {
	d := &ScanDir{NRecordedScans: 1, NextScan: MaxScans}
	d.Sanitize()

	n, err := d.NScans()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestSanitizeLeavesValidDirectoryUntouched(t *testing.T) {
	d := &ScanDir{}
	require.NoError(t, d.SetScan(0, "keep_me", 10, 20))
	d.Sanitize()

	n, err := d.NScans()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	name, _, _, err := d.Scan(0)
	require.NoError(t, err)
	assert.Equal(t, "keep_me", name)
}

func TestDetectLayoutMatchesAllThreeVariants(t *testing.T) {
	cases := []struct {
		size int
		want Layout
	}{
		{basicSize, LayoutBasic},
		{enhancedSize, LayoutEnhanced},
		{fullSize, LayoutEnhancedWithDriveInfo},
	}
	for _, c := range cases {
		got, err := DetectLayout(c.size)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
		assert.Equal(t, c.size, c.want.Size())
	}
}

func TestDetectLayoutRejectsUnknownSize(t *testing.T) {
	_, err := DetectLayout(basicSize + 1)
	assert.Error(t, err)
}

func TestLayoutStringNames(t *testing.T) {
	assert.Equal(t, "basic", LayoutBasic.String())
	assert.Equal(t, "enhanced", LayoutEnhanced.String())
	assert.Equal(t, "enhanced+driveinfo", LayoutEnhancedWithDriveInfo.String())
}

func TestMarshalUnmarshalRoundTripBasic(t *testing.T) {
	d := &Directory{Layout: LayoutBasic}
	require.NoError(t, d.Scans.SetScan(0, "r1", 0, 1024))

	data, err := Marshal(d)
	require.NoError(t, err)
	assert.Len(t, data, basicSize)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, LayoutBasic, got.Layout)
	name, start, length, err := got.Scans.Scan(0)
	require.NoError(t, err)
	assert.Equal(t, "r1", name)
	assert.EqualValues(t, 0, start)
	assert.EqualValues(t, 1024, length)
}

func TestMarshalUnmarshalRoundTripEnhanced(t *testing.T) {
	d := &Directory{Layout: LayoutEnhanced}
	d.Header.DirectoryVersion = 3
	d.Header.Status = 7
	copy(d.Header.VSN[:], "VLBA+0001")
	require.NoError(t, d.Scans.SetScan(0, "scan_a", 512, 2048))

	data, err := Marshal(d)
	require.NoError(t, err)
	assert.Len(t, data, enhancedSize)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, LayoutEnhanced, got.Layout)
	assert.EqualValues(t, 3, got.Header.DirectoryVersion)
	assert.EqualValues(t, 7, got.Header.Status)
	assert.Equal(t, "VLBA+0001", cToGoString(got.Header.VSN[:]))
}

func TestMarshalUnmarshalRoundTripWithDriveInfo(t *testing.T) {
	d := &Directory{Layout: LayoutEnhancedWithDriveInfo}
	d.Header.DirectoryVersion = 1
	d.Drive.Capacity = 2_000_000_000_000
	d.Drive.SMARTCapable = 1
	copy(d.Drive.Model[:], "Conner CFA-540")

	data, err := Marshal(d)
	require.NoError(t, err)
	assert.Len(t, data, fullSize)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, LayoutEnhancedWithDriveInfo, got.Layout)
	assert.EqualValues(t, 2_000_000_000_000, got.Drive.Capacity)
	assert.EqualValues(t, 1, got.Drive.SMARTCapable)
	assert.Equal(t, "Conner CFA-540", cToGoString(got.Drive.Model[:]))
}

func TestUnmarshalRejectsUnknownSize(t *testing.T) {
	_, err := Unmarshal(make([]byte, basicSize+3))
	assert.Error(t, err)
}

func TestSizeOfPrimitiveKinds(t *testing.T) {
	assert.Equal(t, 1, sizeOf(uint8(0)))
	assert.Equal(t, 4, sizeOf(int32(0)))
	assert.Equal(t, 4, sizeOf(uint32(0)))
	assert.Equal(t, 8, sizeOf(uint64(0)))
	assert.Equal(t, 8, sizeOf(float64(0)))
}
