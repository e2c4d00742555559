package diskarray

import (
	"sync"

	"github.com/jive-evlbi/chaind/internal/errs"
)

// shardSize mirrors the teacher's backend.Memory 64KB shard width: large
// enough that sharding overhead stays small, small enough that
// concurrent disk2net/net2disk steps on disjoint regions rarely
// contend.
const shardSize = 64 * 1024

// Memory is a RAM-backed Array, standing in for the vendor StreamStor
// SSAPI binding in tests and hardware-free development. Grounded on
// the teacher's backend.Memory (backend/mem.go): same sharded
// sync.RWMutex locking strategy, generalized here with the
// record/play pointer and play-rate bookkeeping a disk array needs
// that a block device does not.
type Memory struct {
	data   []byte
	shards []sync.RWMutex

	mu       sync.Mutex
	recordAt int64
	playAt   int64
	playRate float64
}

// NewMemory allocates a zeroed Memory array of the given size in bytes.
func NewMemory(size int64) *Memory {
	numShards := (size + shardSize - 1) / shardSize
	if numShards < 1 {
		numShards = 1
	}
	return &Memory{
		data:   make([]byte, size),
		shards: make([]sync.RWMutex, numShards),
	}
}

func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / shardSize)
	end = int((off + length - 1) / shardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

// ReadAt implements Array.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) || off < 0 {
		return 0, nil
	}
	available := int64(len(m.data)) - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	n := copy(p, m.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return n, nil
}

// WriteAt implements Array and advances the record pointer to
// off+len(p) if this write extends it.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) || off < 0 {
		return 0, errs.NewError("diskarray.memory.write", errs.CodeParamError, "write beyond end of array")
	}
	available := int64(len(m.data)) - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	start, end := m.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	n := copy(m.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}

	m.mu.Lock()
	if end := off + int64(n); end > m.recordAt {
		m.recordAt = end
	}
	m.mu.Unlock()
	return n, nil
}

// Size implements Array.
func (m *Memory) Size() int64 { return int64(len(m.data)) }

// RecordPointer implements Array.
func (m *Memory) RecordPointer() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordAt
}

// PlayPointer implements Array.
func (m *Memory) PlayPointer() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playAt
}

// SetPlayPointer implements Array, clamping to [0, Size()].
func (m *Memory) SetPlayPointer(off int64) {
	if off < 0 {
		off = 0
	}
	if size := int64(len(m.data)); off > size {
		off = size
	}
	m.mu.Lock()
	m.playAt = off
	m.mu.Unlock()
}

// PlayRate implements Array.
func (m *Memory) PlayRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playRate
}

// SetPlayRate implements Array.
func (m *Memory) SetPlayRate(bytesPerSec float64) {
	m.mu.Lock()
	m.playRate = bytesPerSec
	m.mu.Unlock()
}

// Close implements Array; a Memory array has nothing to release beyond
// its backing slice.
func (m *Memory) Close() error {
	m.data = nil
	return nil
}

var _ Array = (*Memory)(nil)
