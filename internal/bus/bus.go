// Package bus implements the inter-chain bus (spec.md §4.7): a
// process-wide named registry of block queues that decouples a
// continuously-running capture chain from an on-demand forwarding
// chain. A writer chain installs a topic; any number of reader chains
// then pop from the same queue, competing for each block the same way
// parallel workers within a single chain step do — spec.md describes
// one queue per topic sized by an aggregate memory budget, not a
// queue per subscriber, so this is a shared-queue bus, not a fan-out
// broadcast one.
package bus

import (
	"fmt"
	"sync"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/queue"
)

// DefaultBudgetBytes is the aggregate memory budget a Bus uses when
// none is configured (spec.md §4.7: "default 512 MB").
const DefaultBudgetBytes = 512 << 20

// Bus is a process-wide named registry of block queues.
type Bus struct {
	mu          sync.Mutex
	budgetBytes int
	topics      map[string]*queue.Queue[*block.Block]
}

// New creates a Bus with the given aggregate memory budget; a
// non-positive budgetBytes falls back to DefaultBudgetBytes.
func New(budgetBytes int) *Bus {
	if budgetBytes <= 0 {
		budgetBytes = DefaultBudgetBytes
	}
	return &Bus{budgetBytes: budgetBytes, topics: make(map[string]*queue.Queue[*block.Block])}
}

// InstallWriter creates name's queue on first call, sized to
// budget÷blockSize slots (at least 1, spec.md §4.7). A later call for
// an already-installed topic returns the existing queue unchanged, so
// a capture chain that restarts its writer step reconnects to the same
// topic instead of orphaning its subscribers.
func (b *Bus) InstallWriter(name string, blockSize int) (*queue.Queue[*block.Block], error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("bus: blockSize must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.topics[name]; ok {
		return q, nil
	}
	capacity := b.budgetBytes / blockSize
	if capacity < 1 {
		capacity = 1
	}
	q := queue.New[*block.Block](capacity)
	b.topics[name] = q
	return q, nil
}

// Subscribe returns name's queue for a reader chain to pop from. It
// fails if no writer has installed that topic yet.
func (b *Bus) Subscribe(name string) (*queue.Queue[*block.Block], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.topics[name]
	if !ok {
		return nil, fmt.Errorf("bus: no such topic %q", name)
	}
	return q, nil
}

// Close retires name's topic: the queue transitions to PopOnly so
// existing subscribers drain what remains and then observe
// end-of-stream, and the name is freed for a future InstallWriter.
func (b *Bus) Close(name string) error {
	b.mu.Lock()
	q, ok := b.topics[name]
	if ok {
		delete(b.topics, name)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bus: no such topic %q", name)
	}
	q.EnablePopOnly()
	return nil
}

// Topics lists the currently installed topic names.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}
