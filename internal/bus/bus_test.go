package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jive-evlbi/chaind/internal/block"
)

func TestSubscribeBeforeInstallFails(t *testing.T) {
	b := New(0)
	_, err := b.Subscribe("capture")
	assert.Error(t, err)
}

func TestInstallWriterSizesQueueFromBudget(t *testing.T) {
	b := New(1024)
	q, err := b.InstallWriter("capture", 256)
	require.NoError(t, err)
	assert.Equal(t, 4, q.Cap())
}

func TestInstallWriterBudgetSmallerThanBlockSizeGivesOneSlot(t *testing.T) {
	b := New(100)
	q, err := b.InstallWriter("capture", 4096)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Cap())
}

func TestInstallWriterIsIdempotent(t *testing.T) {
	b := New(1024)
	q1, err := b.InstallWriter("capture", 256)
	require.NoError(t, err)
	q2, err := b.InstallWriter("capture", 256)
	require.NoError(t, err)
	assert.Same(t, q1, q2)
}

func TestWriterAndSubscriberShareTheSameQueue(t *testing.T) {
	b := New(1024)
	wq, err := b.InstallWriter("capture", 256)
	require.NoError(t, err)
	rq, err := b.Subscribe("capture")
	require.NoError(t, err)

	pool := newTestPool(t, 256, 1)
	blk, ok := pool.Get()
	require.True(t, ok)
	require.True(t, wq.Push(blk))

	got, ok := rq.Pop()
	require.True(t, ok)
	assert.Same(t, blk, got)
	got.Release()
}

func TestCloseRetiresTopicAndDrainsExistingSubscribers(t *testing.T) {
	b := New(1024)
	wq, err := b.InstallWriter("capture", 256)
	require.NoError(t, err)
	rq, err := b.Subscribe("capture")
	require.NoError(t, err)

	pool := newTestPool(t, 256, 1)
	blk, ok := pool.Get()
	require.True(t, ok)
	require.True(t, wq.Push(blk))

	require.NoError(t, b.Close("capture"))
	got, ok := rq.Pop()
	require.True(t, ok, "a PopOnly queue should still yield its queued item")
	got.Release()

	_, ok = rq.Pop()
	assert.False(t, ok, "an empty PopOnly queue reports end-of-stream")

	_, err = b.Subscribe("capture")
	assert.Error(t, err, "a closed topic can no longer be subscribed to by name")
}

func TestCloseUnknownTopicFails(t *testing.T) {
	b := New(0)
	assert.Error(t, b.Close("nope"))
}

func TestTopicsListsInstalledNames(t *testing.T) {
	b := New(1024)
	_, err := b.InstallWriter("a", 64)
	require.NoError(t, err)
	_, err = b.InstallWriter("b", 64)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, b.Topics())
}

func newTestPool(t *testing.T, blockSize, nblock int) *block.Pool {
	t.Helper()
	return block.NewPool(blockSize, nblock)
}
