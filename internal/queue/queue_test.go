package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P2: pops observe pushed values in push-order, and live size stays in
// [0, C] throughout, absent a disable.
func TestFIFOOrderAndBoundedSize(t *testing.T) {
	q := New[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, q.Push(i))
		assert.LessOrEqual(t, q.Len(), 4)
	}
	assert.False(t, q.TryPush(99), "queue at capacity must refuse TryPush")

	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
		assert.GreaterOrEqual(t, q.Len(), 0)
	}
}

// B2: a bounded queue of capacity 1 serializes producer and consumer.
func TestCapacityOneSerializes(t *testing.T) {
	q := New[int](1)
	require.True(t, q.Push(1))

	pushed := make(chan struct{})
	go func() {
		q.Push(2) // must block until the first pop
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("second push completed before first pop freed capacity")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after pop freed capacity")
	}

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

// I4: a PopOnly queue eventually drains; once empty, Pop returns false.
func TestPopOnlyDrainsThenReturnsFalse(t *testing.T) {
	q := New[int](4)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))

	q.EnablePopOnly()
	assert.False(t, q.Push(3), "push must fail immediately once pop-only")

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop()
	assert.False(t, ok, "pop-only queue must report false once drained")
}

func TestDisableWakesBlockedWaiters(t *testing.T) {
	q := New[int](1)
	require.True(t, q.Push(1)) // fill capacity

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = q.Push(2) }() // blocks: full
	go func() {
		defer wg.Done()
		q.Pop() // drain the one item
		_, ok := q.Pop()
		results[1] = ok // blocks: empty
	}()

	time.Sleep(20 * time.Millisecond)
	q.Disable()
	wg.Wait()

	assert.False(t, results[0], "blocked push must fail once disabled")
	assert.False(t, results[1], "blocked pop must fail once disabled")
}

func TestResizeEnablePushResetsState(t *testing.T) {
	q := New[int](2)
	q.EnablePopOnly()
	assert.False(t, q.Push(1))

	q.ResizeEnablePush(8)
	assert.Equal(t, Enabled, q.State())
	assert.Equal(t, 8, q.Cap())
	assert.True(t, q.Push(1))
}

func TestClearEmptiesWithoutChangingState(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, Enabled, q.State())
	assert.True(t, q.Push(3))
}
