package diskarray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jive-evlbi/chaind/internal/errs"
)

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewMemory(1024)
	defer m.Close()

	data := []byte("vlba-sync-test-pattern")
	n, err := m.WriteAt(data, 100)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = m.ReadAt(got, 100)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, got)
}

func TestMemoryReadPastEndReturnsZero(t *testing.T) {
	m := NewMemory(100)
	buf := make([]byte, 10)
	n, err := m.ReadAt(buf, 200)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryReadTruncatesAtEnd(t *testing.T) {
	m := NewMemory(100)
	buf := make([]byte, 50)
	n, err := m.ReadAt(buf, 80)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestMemoryWriteAtOrPastEndFails(t *testing.T) {
	m := NewMemory(100)
	_, err := m.WriteAt([]byte("x"), 100)
	assert.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeParamError))
}

func TestMemoryWriteTruncatesAtEnd(t *testing.T) {
	m := NewMemory(100)
	n, err := m.WriteAt(make([]byte, 50), 80)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestMemoryRecordPointerTracksHighWaterMark(t *testing.T) {
	m := NewMemory(1024)
	_, err := m.WriteAt(make([]byte, 100), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 100, m.RecordPointer())

	_, err = m.WriteAt(make([]byte, 50), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 100, m.RecordPointer(), "a write entirely within the already-recorded range must not retreat the pointer")

	_, err = m.WriteAt(make([]byte, 10), 150)
	require.NoError(t, err)
	assert.EqualValues(t, 160, m.RecordPointer())
}

func TestMemoryPlayPointerClamps(t *testing.T) {
	m := NewMemory(100)
	m.SetPlayPointer(-5)
	assert.EqualValues(t, 0, m.PlayPointer())

	m.SetPlayPointer(1000)
	assert.EqualValues(t, 100, m.PlayPointer())

	m.SetPlayPointer(42)
	assert.EqualValues(t, 42, m.PlayPointer())
}

func TestMemoryPlayRateRoundTrip(t *testing.T) {
	m := NewMemory(100)
	assert.Zero(t, m.PlayRate())
	m.SetPlayRate(32_000_000)
	assert.Equal(t, 32_000_000.0, m.PlayRate())
}

func TestMemorySatisfiesArray(t *testing.T) {
	var _ Array = NewMemory(1)
}

func TestUnimplementedIOBoardReportsNotImplemented(t *testing.T) {
	b := NewUnimplementedIOBoard()

	err := b.Start()
	assert.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeNotImplemented))

	err = b.Stop()
	assert.True(t, errs.IsCode(err, errs.CodeNotImplemented))

	_, err = b.Status()
	assert.True(t, errs.IsCode(err, errs.CodeNotImplemented))
}
