// Package diskarray formalizes the opaque StreamStor/ioboard boundary
// spec.md §1 and §7 name as an external collaborator: a narrow contract
// that disk2.../... 2disk chain steps depend on, without committing to
// the vendor SSAPI this repo has no license to link. The real hardware
// binding (SSAPI, ioboard registers) remains unimplemented and reports
// errs.CodeNotImplemented; a Memory implementation grounded on the
// teacher's backend.Memory (backend/mem.go) stands in for it in tests
// and for fill2.../...2file-style development without real hardware.
package diskarray

import "github.com/jive-evlbi/chaind/internal/errs"

// Array is the minimal contract a disk-array-backed chain step needs:
// byte-addressed read/write plus the three pointers StreamStor exposes
// for record/playback bookkeeping (spec.md §6's user-directory fields
// mirror these exactly).
type Array interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64

	// RecordPointer is the byte offset one past the most recently
	// recorded data.
	RecordPointer() int64
	// PlayPointer is the current playback byte offset.
	PlayPointer() int64
	// SetPlayPointer seeks playback to off; implementations should
	// clamp rather than error on an out-of-range seek, matching the
	// StreamStor SDK's own permissive behavior.
	SetPlayPointer(off int64)
	// PlayRate is played bytes per second, spec.md §6's "play rate"
	// directory field; 0 means "as fast as the reader drains it".
	PlayRate() float64
	SetPlayRate(bytesPerSec float64)

	Close() error
}

// IOBoard models the vendor ioboard register interface (clock mode,
// start/stop, status flags) as a minimal contract, per spec.md §4.8.
// No real binding exists in this repo; NewUnimplementedIOBoard is the
// only constructor until a vendor SDK is linked in.
type IOBoard interface {
	Start() error
	Stop() error
	Status() (Status, error)
}

// Status is the ioboard status snapshot a `status?` query reports.
type Status struct {
	Running    bool
	ClockMode  string
	ErrorFlags uint32
}

type unimplementedIOBoard struct{}

// NewUnimplementedIOBoard returns an IOBoard whose every method reports
// errs.CodeNotImplemented, the placeholder for the vendor SSAPI/
// ioboard binding spec.md §1 and §7 list as out of scope.
func NewUnimplementedIOBoard() IOBoard { return unimplementedIOBoard{} }

func (unimplementedIOBoard) Start() error {
	return errs.NewError("diskarray.ioboard.start", errs.CodeNotImplemented, "ioboard hardware binding not implemented")
}

func (unimplementedIOBoard) Stop() error {
	return errs.NewError("diskarray.ioboard.stop", errs.CodeNotImplemented, "ioboard hardware binding not implemented")
}

func (unimplementedIOBoard) Status() (Status, error) {
	return Status{}, errs.NewError("diskarray.ioboard.status", errs.CodeNotImplemented, "ioboard hardware binding not implemented")
}
