// Package step defines a chain's unit of work: a Step runs an entry
// function against an optional inbound and outbound queue of blocks,
// coordinating with the rest of the chain through a small Sync
// primitive that carries the step's cancellation flag and
// control-thread-owned user data (spec.md §4.3).
package step

import (
	"context"
	"sync"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/queue"
)

// BlockQueue is the concrete queue type every step's inbound/outbound
// side uses: chains move reference-counted blocks, never raw bytes.
type BlockQueue = queue.Queue[*block.Block]

// Sync bundles a step's mutex, condition variable, cancellation flag
// and control-thread-owned user data. communicate() (internal/chain)
// is the only sanctioned way to mutate UserData while the step's
// worker(s) may also be touching it.
type Sync struct {
	mu        sync.Mutex
	cond      *sync.Cond
	cancelled bool
	userData  any
}

// NewSync creates a Sync seeded with the given user data.
func NewSync(userData any) *Sync {
	s := &Sync{userData: userData}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Lock/Unlock expose the underlying mutex so Communicate can run a
// member function with it held.
func (s *Sync) Lock()   { s.mu.Lock() }
func (s *Sync) Unlock() { s.mu.Unlock() }

// UserData returns the step's user data. Callers outside Communicate
// must treat the returned value as read-only unless they hold the Sync
// lock themselves.
func (s *Sync) UserData() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userData
}

// SetUserData replaces the step's user data under lock.
func (s *Sync) SetUserData(v any) {
	s.mu.Lock()
	s.userData = v
	s.mu.Unlock()
}

// Apply runs fn with the step's mutex held, passing the current user
// data and storing whatever fn returns back as the new user data. This
// is the primitive Chain.Communicate is built on.
func (s *Sync) Apply(fn func(userData any) any) {
	s.mu.Lock()
	s.userData = fn(s.userData)
	s.mu.Unlock()
}

// Cancel sets the cancellation flag and wakes anything waiting on the
// condition variable. Idempotent.
func (s *Sync) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Cancelled reports whether Cancel has been called.
func (s *Sync) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// WaitCancelled blocks until Cancelled would return true. Steps that
// need a bounded internal wait (rather than blocking purely on queue
// pop/push) use this to stay responsive to stop().
func (s *Sync) WaitCancelled() {
	s.mu.Lock()
	for !s.cancelled {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Fn is a step's entry function. inq is nil for a producer, outq is
// nil for a consumer; a transformer gets both. The function should
// loop, respecting sy.Cancelled()/ctx.Done() and the queue-driven
// termination pattern in spec.md §4.3, returning when it has nothing
// further to do.
type Fn func(ctx context.Context, inq, outq *BlockQueue, sy *Sync) error

// Step is one stage of a chain.
type Step struct {
	ID       int
	NThread  int
	Fn       Fn
	InQueue  *BlockQueue
	OutQueue *BlockQueue
	Sync     *Sync

	cancelFn func()
}

// New constructs a step. inq/outq may be nil; chain.Add is responsible
// for wiring a fresh step's InQueue to the previous step's OutQueue.
func New(id int, fn Fn, nthread int, inq, outq *BlockQueue, userData any) *Step {
	if nthread < 1 {
		nthread = 1
	}
	return &Step{
		ID:       id,
		NThread:  nthread,
		Fn:       fn,
		InQueue:  inq,
		OutQueue: outq,
		Sync:     NewSync(userData),
	}
}

// RegisterCancel attaches the callback invoked when this step is
// cancelled — typically closing a file descriptor or socket so any
// blocking syscall the worker is stuck in returns with failure.
func (s *Step) RegisterCancel(fn func()) {
	s.cancelFn = fn
}

// Cancel runs the registered cancel callback (if any), sets the
// cancellation flag, and disables the inbound queue so any waiting
// pop() call also wakes.
func (s *Step) Cancel() {
	if s.cancelFn != nil {
		s.cancelFn()
	}
	s.Sync.Cancel()
	if s.InQueue != nil {
		s.InQueue.Disable()
	}
}
