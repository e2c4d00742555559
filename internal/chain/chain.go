// Package chain implements the processing-chain runtime: a linear
// sequence of steps connected by bounded block queues, run and stopped
// as a unit (spec.md §3, §4.3). Workers are plain goroutines joined
// through golang.org/x/sync/errgroup; an optional
// golang.org/x/sync/semaphore.Weighted throttles how many worker
// goroutines may run concurrently across the whole chain, mirroring
// the teacher's one-thread-per-queue worker model without requiring
// an unbounded number of OS threads for a chain with many parallel
// steps.
package chain

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/interfaces"
	"github.com/jive-evlbi/chaind/internal/queue"
	"github.com/jive-evlbi/chaind/internal/step"
)

// Status is the chain's overall lifecycle state.
type Status int

const (
	StatusBuilding Status = iota
	StatusRunning
	StatusStopped
)

// DefaultQueueCapacity is the per-step outbound queue capacity used
// when Add doesn't specify one.
const DefaultQueueCapacity = 8

// Chain is a linear sequence of steps sharing bounded queues between
// consecutive stages.
type Chain struct {
	mu       sync.Mutex
	steps    []*step.Step
	finals   []func()
	status   Status
	observer interfaces.Observer
	logger   interfaces.Logger

	// MaxConcurrency, if non-zero, caps the number of worker goroutines
	// that may run at once across the whole chain via a weighted
	// semaphore. Zero means unlimited (one goroutine per configured
	// thread, as spec.md §4.3 describes).
	MaxConcurrency int64
	// CPUAffinity, if non-empty, is applied to every worker goroutine's
	// backing OS thread via runtime.LockOSThread + unix.SchedSetaffinity,
	// matching the teacher's per-queue pinning.
	CPUAffinity []int

	sem      *semaphore.Weighted
	eg       *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	finalize sync.Once
}

// New creates an empty, Building chain.
func New(observer interfaces.Observer, logger interfaces.Logger) *Chain {
	return &Chain{observer: observer, logger: logger}
}

// Add appends a step. nthread <= 0 means one worker. The new step's
// inbound queue is the previous step's outbound queue (nil for the
// first step added); a fresh outbound queue of capacity outCap is
// created unless isConsumer is true. Returns the new step's id.
func (c *Chain) Add(fn step.Fn, nthread int, outCap int, isConsumer bool, userData any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusBuilding {
		return 0, fmt.Errorf("chain: cannot Add after run()")
	}

	id := len(c.steps)
	var inq *queue.Queue[*block.Block]
	if id > 0 {
		inq = c.steps[id-1].OutQueue
	}
	var outq *queue.Queue[*block.Block]
	if !isConsumer {
		if outCap <= 0 {
			outCap = DefaultQueueCapacity
		}
		outq = queue.New[*block.Block](outCap)
	}

	st := step.New(id, fn, nthread, inq, outq, userData)
	c.steps = append(c.steps, st)
	return id, nil
}

// RegisterCancel attaches a cancellation callback to the given step.
func (c *Chain) RegisterCancel(stepID int, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.stepLocked(stepID)
	if err != nil {
		return err
	}
	st.RegisterCancel(fn)
	return nil
}

// RegisterFinal attaches a finalizer run, in registration order, after
// every worker thread has exited.
func (c *Chain) RegisterFinal(fn func()) {
	c.mu.Lock()
	c.finals = append(c.finals, fn)
	c.mu.Unlock()
}

func (c *Chain) stepLocked(stepID int) (*step.Step, error) {
	if stepID < 0 || stepID >= len(c.steps) {
		return nil, fmt.Errorf("chain: no such step %d", stepID)
	}
	return c.steps[stepID], nil
}

// Communicate invokes memberFn(sync's user data) under the step's
// mutex — the only sanctioned way for the control thread to mutate a
// running step's user data (spec.md §4.3).
func (c *Chain) Communicate(stepID int, memberFn func(userData any) any) error {
	c.mu.Lock()
	st, err := c.stepLocked(stepID)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	st.Sync.Apply(memberFn)
	return nil
}

// Status reports the chain's lifecycle state.
func (c *Chain) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// NumSteps reports how many steps have been added.
func (c *Chain) NumSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Run walks steps leaf-to-root, spawning nthread worker goroutines for
// each (spec.md §4.3 run()). It returns once every worker has started;
// call Wait to block until they all exit naturally, or Stop to cancel
// and join them.
func (c *Chain) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusBuilding {
		c.mu.Unlock()
		return fmt.Errorf("chain: Run called in state %d", c.status)
	}
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("chain: cannot run an empty chain")
	}
	steps := append([]*step.Step(nil), c.steps...)
	maxConc := c.MaxConcurrency
	affinity := append([]int(nil), c.CPUAffinity...)
	c.status = StatusRunning
	c.mu.Unlock()

	cancelCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(cancelCtx)
	c.eg = eg
	c.ctx = egCtx
	c.cancel = cancel

	if maxConc > 0 {
		c.sem = semaphore.NewWeighted(maxConc)
	}

	// Leaf-to-root: spawn consumer-ward steps first so a fast producer
	// never outpaces a not-yet-running consumer's queue.
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		for w := 0; w < st.NThread; w++ {
			worker := w
			eg.Go(func() error {
				if c.sem != nil {
					if err := c.sem.Acquire(egCtx, 1); err != nil {
						return nil
					}
					defer c.sem.Release(1)
				}
				if len(affinity) > 0 {
					pinWorker(affinity)
				}
				if err := st.Fn(egCtx, st.InQueue, st.OutQueue, st.Sync); err != nil {
					if c.observer != nil {
						c.observer.ObserveError(st.ID, err)
					}
					if c.logger != nil {
						c.logger.Errorf("chain: step %d worker %d: %v", st.ID, worker, err)
					}
				}
				return nil
			})
		}
	}
	return nil
}

// pinWorker locks the calling goroutine to its OS thread and pins that
// thread to the given CPU set, matching the teacher's per-queue
// affinity handling in internal/uring. Best-effort: failures are
// swallowed since affinity is a performance hint, not correctness.
func pinWorker(cpus []int) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	_ = unix.SchedSetaffinity(0, &set)
}

// Wait blocks until every worker goroutine has returned, then runs
// finalizers in registration order and marks the chain Stopped.
func (c *Chain) Wait() error {
	c.mu.Lock()
	eg := c.eg
	c.mu.Unlock()

	var err error
	if eg != nil {
		err = eg.Wait()
	}
	c.runFinalizers()
	c.mu.Lock()
	c.status = StatusStopped
	c.mu.Unlock()
	return err
}

// Stop cancels every step (cancel-callback, cancellation flag, and
// condvar broadcast), enables pop-only on every inter-step queue in
// chain order so drains cascade downstream, joins all workers, runs
// finalizers, and marks the chain Stopped (spec.md §4.3 stop()).
func (c *Chain) Stop() error {
	c.mu.Lock()
	steps := append([]*step.Step(nil), c.steps...)
	cancel := c.cancel
	c.mu.Unlock()

	for _, st := range steps {
		st.Cancel()
	}
	for _, st := range steps {
		if st.OutQueue != nil {
			st.OutQueue.EnablePopOnly()
		}
	}
	// Workers blocking on ctx.Done() (rather than a queue or Sync) need
	// the chain's own context cancelled too; queue-disable alone only
	// wakes pop()/push() waiters.
	if cancel != nil {
		cancel()
	}

	return c.Wait()
}

func (c *Chain) runFinalizers() {
	c.finalize.Do(func() {
		c.mu.Lock()
		finals := append([]func(){}, c.finals...)
		c.mu.Unlock()
		for _, fn := range finals {
			fn()
		}
	})
}
