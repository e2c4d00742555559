package chaind

import (
	"github.com/jive-evlbi/chaind/internal/config"
	"github.com/jive-evlbi/chaind/internal/diskarray"
	"github.com/jive-evlbi/chaind/internal/interfaces"
	"github.com/jive-evlbi/chaind/internal/logging"
)

// NewTestRuntime builds a Runtime sized for unit tests and short-lived
// examples: a small in-memory disk array, a no-op observer, and a
// development-mode logger, all independent of the environment
// config.Load would otherwise read from. Embedders writing their own
// tests against chaind's public surface should use this instead of
// hand-assembling a Runtime, the same way the teacher's own backend
// package exposes NewMemory as its test-friendly stand-in for real
// hardware.
func NewTestRuntime(diskSize int64) *Runtime {
	if diskSize <= 0 {
		diskSize = 1 << 20
	}
	cfg := config.Default()
	cfg.Net.BlockSize = 4096
	cfg.Net.NumBlocks = 4
	return NewRuntime(cfg,
		WithDiskArray(diskarray.NewMemory(diskSize)),
		WithObserver(interfaces.NoOpObserver{}),
		WithLogger(logging.NewLogger(&logging.Config{Level: logging.LevelDebug, Development: true})),
	)
}

// StubIOBoard exposes diskarray's unimplemented I/O-board stand-in
// directly, for tests that exercise the CodeNotImplemented contract
// boundary (spec.md §4.8) itself rather than a mode handler built on
// top of it.
func StubIOBoard() diskarray.IOBoard {
	return diskarray.NewUnimplementedIOBoard()
}
