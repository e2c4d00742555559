// Package userdir implements the persisted StreamStor user-directory
// layout (spec.md §6): a fixed-layout byte region written to the
// disk-array header holding the scan index, record/play pointers and
// play rate, plus the vendor "Enhanced Mark5 module directory" blocks
// some SDK versions append. The on-disk scan index itself is an opaque
// service (spec.md §7's out-of-scope list); this package only owns the
// byte layout and its sanitize/round-trip semantics.
package userdir

import "fmt"

// MaxScans bounds the fixed-size scan table. The vendor SDK's actual
// constant is implementation-defined (and, per spec.md §7, out of
// scope); this package picks a generous fixed capacity of its own.
const MaxScans = 128

// ScanNameLen is the fixed width of a scan name field, matching the
// original's fixed char array.
const ScanNameLen = 64

// ScanDir is the core scan table every layout variant carries,
// grounded on original_source/src/userdir_layout.h's ScanDir<Maxscans>.
type ScanDir struct {
	NRecordedScans int32
	NextScan       int32
	ScanName       [MaxScans][ScanNameLen]byte
	ScanStart      [MaxScans]uint64
	ScanLength     [MaxScans]uint64
	RecordPointer  uint64
	PlayPointer    uint64
	PlayRate       float64
}

// NScans returns the number of recorded scans, or an error if the
// field holds a value that couldn't have come from a sane directory
// (negative), matching the original's "nRecordedScans<0" throw.
func (d *ScanDir) NScans() (uint32, error) {
	if d.NRecordedScans < 0 {
		return 0, fmt.Errorf("userdir: negative recorded-scan count %d", d.NRecordedScans)
	}
	return uint32(d.NRecordedScans), nil
}

// Scan returns the name/start/length of the i'th recorded scan.
func (d *ScanDir) Scan(i int) (name string, start, length uint64, err error) {
	n, err := d.NScans()
	if err != nil {
		return "", 0, 0, err
	}
	if i < 0 || uint32(i) >= n {
		return "", 0, 0, fmt.Errorf("userdir: scan %d out of range (nScans=%d)", i, n)
	}
	return cToGoString(d.ScanName[i][:]), d.ScanStart[i], d.ScanLength[i], nil
}

// Sanitize implements spec.md S6: after reading a raw blob that may or
// may not actually be a valid directory (there is no way to be sure a
// StreamStor read returned real directory data), reset the whole
// structure to empty if any field is out of its legal range — the
// same defensive reset original_source's ScanDir::sanitize performs.
func (d *ScanDir) Sanitize() {
	if d.NRecordedScans < 0 || d.NRecordedScans > MaxScans ||
		d.NextScan < 0 || d.NextScan >= MaxScans {
		*d = ScanDir{}
	}
}

func cToGoString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func goToCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// SetScan writes the i'th scan slot (spec.md's "record a new scan"
// path), raising NRecordedScans to i+1 if slot i lies at or beyond the
// current count.
func (d *ScanDir) SetScan(i int, name string, start, length uint64) error {
	if i < 0 || i >= MaxScans {
		return fmt.Errorf("userdir: scan index %d exceeds capacity %d", i, MaxScans)
	}
	if len(name) >= ScanNameLen {
		return fmt.Errorf("userdir: scan name %q too long for %d-byte field", name, ScanNameLen)
	}
	goToCString(d.ScanName[i][:], name)
	d.ScanStart[i] = start
	d.ScanLength[i] = length
	d.RecordPointer = start + length
	if int32(i) >= d.NRecordedScans {
		d.NRecordedScans = int32(i) + 1
	}
	return nil
}
