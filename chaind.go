package chaind

import (
	"context"

	"github.com/jive-evlbi/chaind/internal/blockpool"
	"github.com/jive-evlbi/chaind/internal/config"
	"github.com/jive-evlbi/chaind/internal/control"
	"github.com/jive-evlbi/chaind/internal/diskarray"
	"github.com/jive-evlbi/chaind/internal/interfaces"
	"github.com/jive-evlbi/chaind/internal/logging"
	"github.com/jive-evlbi/chaind/internal/transfer"
)

// Runtime is chaind's embeddable public handle: one transfer.Runtime
// state machine, the block pool and disk-array backing its chains draw
// from, and the control.Dispatcher that turns protocol lines into mode
// transitions. cmd/chaind builds one Runtime for the whole process and
// serves control connections against it one at a time; library callers
// embedding chaind directly can drive a Runtime without going through
// the TCP control port at all.
type Runtime struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *Metrics
	pool       *blockpool.BlockPool
	disk       diskarray.Array
	transfer   *transfer.Runtime
	dispatcher *control.Dispatcher
}

// Option customizes a Runtime at construction time.
type Option func(*runtimeOptions)

type runtimeOptions struct {
	disk     diskarray.Array
	observer interfaces.Observer
	logger   *logging.Logger
}

// WithDiskArray overrides the default in-memory disk-array stand-in with
// arr, e.g. a caller-supplied backend wired to real hardware.
func WithDiskArray(arr diskarray.Array) Option {
	return func(o *runtimeOptions) { o.disk = arr }
}

// WithObserver overrides the default Metrics aggregate with an
// arbitrary interfaces.Observer, e.g. a MultiObserver fanning out to
// both Metrics and a PrometheusObserver.
func WithObserver(obs interfaces.Observer) Option {
	return func(o *runtimeOptions) { o.observer = obs }
}

// WithLogger overrides the default logger built from cfg.Logging.
func WithLogger(logger *logging.Logger) Option {
	return func(o *runtimeOptions) { o.logger = logger }
}

// NewRuntime builds a Runtime from cfg, seeding its block pool and
// control dispatcher from cfg.Net's defaults. A nil cfg falls back to
// config.Default().
func NewRuntime(cfg *config.Config, opts ...Option) *Runtime {
	if cfg == nil {
		cfg = config.Default()
	}

	ro := runtimeOptions{}
	for _, opt := range opts {
		opt(&ro)
	}

	logger := ro.logger
	if logger == nil {
		logger = logging.NewLogger(levelFromString(cfg.Logging.Level, cfg.Logging.Development))
	}

	metrics := NewMetrics()
	var observer interfaces.Observer = metrics
	if ro.observer != nil {
		observer = ro.observer
	}

	disk := ro.disk
	if disk == nil {
		disk = diskarray.NewMemory(int64(cfg.Net.BlockSize) * int64(cfg.Net.NumBlocks))
	}

	pool := blockpool.New(cfg.Net.BlockSize, cfg.Net.NumBlocks)
	tr := transfer.New(observer, logger)
	disp := control.NewDispatcher(tr, control.Dependencies{
		Pool:     pool,
		Disk:     disk,
		Observer: observer,
		Logger:   logger,
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		pool:       pool,
		disk:       disk,
		transfer:   tr,
		dispatcher: disp,
	}
}

// Dispatch feeds one control-protocol line to the Runtime's dispatcher
// and returns its wire-format reply, e.g. "! in2net = 0 ;".
func (r *Runtime) Dispatch(ctx context.Context, line string) string {
	return r.dispatcher.Dispatch(ctx, line)
}

// Mode reports the Runtime's current transfer mode and submode flags.
func (r *Runtime) Mode() (transfer.Mode, transfer.Submode) {
	return r.transfer.State()
}

// Metrics returns the Runtime's in-process counters, populated whenever
// no WithObserver override replaced them.
func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

// Close stops any in-flight chain and returns the Runtime to idle.
func (r *Runtime) Close() error {
	return r.transfer.Close()
}

func levelFromString(level string, dev bool) *logging.Config {
	lvl := logging.LevelInfo
	switch level {
	case "debug":
		lvl = logging.LevelDebug
	case "warn":
		lvl = logging.LevelWarn
	case "error":
		lvl = logging.LevelError
	}
	return &logging.Config{Level: lvl, Development: dev}
}
