package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jive-evlbi/chaind/internal/chain"
	"github.com/jive-evlbi/chaind/internal/interfaces"
)

// ErrBusy is what the *BusyError that Open returns unwraps to when the
// admission rule refuses a mode transition because the runtime is busy
// with an incompatible mode. Callers (internal/control) translate this into the
// control-protocol's "busy with <mode>" response.
var ErrBusy = errors.New("transfer: busy")

// BusyError carries the mode that refused admission, so a caller can
// format "busy with <mode>" without string-parsing ErrBusy.
type BusyError struct {
	Current Mode
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("transfer: busy with %s", e.Current)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// Handler implements the open step of one mode's open/on/pause/off
// lifecycle (spec.md §4.4's "Transitions are driven by handler
// functions"); Runtime's On, Pause and Close drive the rest.
type Handler interface {
	// Open validates parameters and builds (but does not yet run) the
	// chain for this mode. A returned error leaves the runtime idle.
	Open(rt *Runtime) (*chain.Chain, error)
}

// Runtime is the per-control-connection state machine: current mode
// and submode flags, the installed chain (if any), and the mutex that
// serializes every mutation (spec.md §3's Runtime).
type Runtime struct {
	mu      sync.Mutex
	mode    Mode
	submode Submode
	chain   *chain.Chain

	observer interfaces.Observer
	logger   interfaces.Logger
}

// New creates an idle Runtime.
func New(observer interfaces.Observer, logger interfaces.Logger) *Runtime {
	return &Runtime{observer: observer, logger: logger}
}

// State returns the current mode and submode flags.
func (r *Runtime) State() (Mode, Submode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode, r.submode
}

// Chain returns the currently installed chain, or nil if idle.
func (r *Runtime) Chain() *chain.Chain {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chain
}

// admit implements spec.md §4.4's admission rule: a request for mode'
// is admitted iff the runtime is idle, OR the request is a query that
// doesn't touch the shared resource used by the current mode, OR the
// request is the current mode's own continuation command. Must be
// called with r.mu held.
func (r *Runtime) admit(requested Mode, isQuery bool) error {
	if r.mode == NoTransfer {
		return nil
	}
	if requested == r.mode {
		return nil
	}
	if isQuery && !sharesResource(r.mode, requested) {
		return nil
	}
	return &BusyError{Current: r.mode}
}

// sharesResource reports whether two modes contend for the same
// hardware resource domain: the StreamStor/disk subsystem or the I/O
// board, both of which StreamstorBusy covers.
func sharesResource(current, requested Mode) bool {
	return StreamstorBusy(current) && StreamstorBusy(requested)
}

// Open runs a handler's Open lifecycle step under the admission rule.
// On success the runtime records the new mode with CONNECTED|WAIT
// submode flags and the handler's chain, ready for On to start it. On
// failure the runtime is left (or put back) idle, matching spec.md
// §4.4's failure policy for a failure during chain build.
func (r *Runtime) Open(mode Mode, h Handler) error {
	r.mu.Lock()
	if err := r.admit(mode, false); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	c, err := h.Open(r)
	if err != nil {
		r.mu.Lock()
		r.mode = NoTransfer
		r.submode = 0
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.mode = mode
	r.submode = SubConnected | SubWait
	r.chain = c
	r.mu.Unlock()
	return nil
}

// On transitions an opened mode to RUN, starting its chain. A
// finalizer that returns the runtime to idle is registered on the
// chain (spec.md §4.4 step 5, "on chain-stop... clears mode back to
// idle") before the chain's workers are spawned; On then starts the
// chain and, once started, launches a goroutine that blocks on the
// chain's Wait so the finalizer fires without the control thread
// itself blocking.
func (r *Runtime) On(ctx context.Context) error {
	r.mu.Lock()
	c := r.chain
	if c == nil {
		r.mu.Unlock()
		return fmt.Errorf("transfer: on called while idle")
	}
	r.submode = (r.submode &^ SubWait &^ SubPause) | SubRun
	r.mu.Unlock()

	c.RegisterFinal(func() {
		r.mu.Lock()
		r.mode = NoTransfer
		r.submode = 0
		r.chain = nil
		r.mu.Unlock()
	})
	if err := c.Run(ctx); err != nil {
		return err
	}
	go func() { _ = c.Wait() }()
	return nil
}

// Pause sets the PAUSE submode flag without stopping the chain; the
// chain's own steps are expected to observe Sync.Cancelled() style
// cooperative pausing where applicable. Chaind's chains don't support
// true mid-flight pause of I/O steps (spec.md's mode handlers pause by
// convention, not by blocking every worker), so Pause here only
// updates the advertised submode for query consumers.
func (r *Runtime) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chain == nil {
		return fmt.Errorf("transfer: pause called while idle")
	}
	r.submode = (r.submode &^ SubRun) | SubPause
	return nil
}

// Close stops the installed chain (if any) and returns the runtime to
// idle. Safe to call when already idle.
func (r *Runtime) Close() error {
	r.mu.Lock()
	c := r.chain
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	err := c.Stop()
	r.mu.Lock()
	r.mode = NoTransfer
	r.submode = 0
	r.chain = nil
	r.mu.Unlock()
	return err
}

// MarkBroken sets the BROKEN submode flag, used when a worker observes
// a failure mid-run (spec.md §7's in-worker failure policy): the
// failure is surfaced via the control protocol without forcing idle,
// leaving it to the operator to issue close.
func (r *Runtime) MarkBroken() {
	r.mu.Lock()
	r.submode |= SubBroken
	r.mu.Unlock()
}
