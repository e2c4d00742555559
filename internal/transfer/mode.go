// Package transfer implements the transfer-mode state machine
// (spec.md §4.4): a closed enumeration of transfer modes, an
// orthogonal submode flag-set, mode-classifier predicates, and the
// admission rule that arbitrates which mode transitions a running
// Runtime may accept.
package transfer

// Mode is one of the closed set of transfer modes a Runtime can be put
// into. The names and grouping follow the mode table supplemented from
// original_source/src/transfermode.cc.
type Mode int

const (
	NoTransfer Mode = iota

	Disk2Net
	Disk2Out
	Disk2File
	Disk2Etransfer

	In2Net
	In2Disk
	In2Fork
	In2File

	Net2Out
	Net2Disk
	Net2Fork
	Net2File
	Net2Check
	Net2Sfxc
	Net2SfxcFork

	Fill2Net
	Fill2File
	Fill2Out
	Fill2Vbs
	Fill2Disk

	Spill2Net
	Spid2Net
	Spin2Net
	Spin2File
	Splet2Net
	Splet2File
	Spill2File
	Spid2File
	Spif2File
	Spif2Net
	Spbs2Net
	Spbs2File

	File2Check
	File2Mem
	File2Disk
	File2Net

	In2Mem
	In2MemFork
	Mem2Net
	Mem2File
	Mem2Sfxc
	Mem2Time
	Net2Mem

	Vbs2Net
	Net2Vbs
	VbsRecord
	Mem2Vbs

	Tvr
	ComputeTrackmask
	Condition
	Bankswitch
	Mounting
	Stream2Sfxc

	modeCount
)

var modeNames = map[Mode]string{
	NoTransfer:       "none",
	Disk2Net:         "disk2net",
	Disk2Out:         "disk2out",
	Disk2File:        "disk2file",
	Disk2Etransfer:   "disk2etransfer",
	In2Net:           "in2net",
	In2Disk:          "in2disk",
	In2Fork:          "in2fork",
	In2File:          "in2file",
	Net2Out:          "net2out",
	Net2Disk:         "net2disk",
	Net2Fork:         "net2fork",
	Net2File:         "net2file",
	Net2Check:        "net2check",
	Net2Sfxc:         "net2sfxc",
	Net2SfxcFork:     "net2sfxcfork",
	Fill2Net:         "fill2net",
	Fill2File:        "fill2file",
	Fill2Out:         "fill2out",
	Fill2Vbs:         "fill2vbs",
	Fill2Disk:        "fill2disk",
	Spill2Net:        "spill2net",
	Spid2Net:         "spid2net",
	Spin2Net:         "spin2net",
	Spin2File:        "spin2file",
	Splet2Net:        "splet2net",
	Splet2File:       "splet2file",
	Spill2File:       "spill2file",
	Spid2File:        "spid2file",
	Spif2File:        "spif2file",
	Spif2Net:         "spif2net",
	Spbs2Net:         "spbs2net",
	Spbs2File:        "spbs2file",
	File2Check:       "file2check",
	File2Mem:         "file2mem",
	File2Disk:        "file2disk",
	File2Net:         "file2net",
	In2Mem:           "in2mem",
	In2MemFork:       "in2memfork",
	Mem2Net:          "mem2net",
	Mem2File:         "mem2file",
	Mem2Sfxc:         "mem2sfxc",
	Mem2Time:         "mem2time",
	Net2Mem:          "net2mem",
	Vbs2Net:          "vbs2net",
	Net2Vbs:          "net2vbs",
	VbsRecord:        "vbsrecord",
	Mem2Vbs:          "mem2vbs",
	Tvr:              "tvr",
	ComputeTrackmask: "compute_trackmask",
	Condition:        "condition",
	Bankswitch:       "bankswitch",
	Mounting:         "mounting",
	Stream2Sfxc:      "stream2sfxc",
}

var namesToMode = func() map[string]Mode {
	m := make(map[string]Mode, len(modeNames))
	for mode, name := range modeNames {
		m[name] = mode
	}
	return m
}()

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode maps a control-protocol mode string onto its Mode,
// returning (NoTransfer, false) for anything unrecognized (mirroring
// original_source's string2transfermode returning no_transfer).
func ParseMode(s string) (Mode, bool) {
	m, ok := namesToMode[s]
	return m, ok
}

// Submode is a bitmask of orthogonal flags layered on top of Mode.
type Submode uint32

const (
	SubPause     Submode = 0x1
	SubRun       Submode = 0x2
	SubWait      Submode = 0x4
	SubConnected Submode = 0x8
	SubBroken    Submode = 0x10
)

func (s Submode) Has(flag Submode) bool { return s&flag != 0 }

func (s Submode) String() string {
	var out string
	add := func(flag Submode, name string) {
		if s.Has(flag) {
			if out != "" {
				out += "|"
			}
			out += name
		}
	}
	add(SubPause, "pause")
	add(SubRun, "run")
	add(SubWait, "wait")
	add(SubConnected, "connected")
	add(SubBroken, "broken")
	if out == "" {
		return "none"
	}
	return out
}

func inSet(m Mode, set []Mode) bool {
	for _, x := range set {
		if x == m {
			return true
		}
	}
	return false
}

var (
	fromFileSet = []Mode{File2Check, File2Mem, Spif2File, Spif2Net, File2Disk, File2Net, Vbs2Net}
	toFileSet   = []Mode{Disk2File, In2File, Net2File, Fill2File, Spill2File, Spif2File, Spbs2File,
		Splet2File, Spin2File, Spid2File, Mem2File, Net2Vbs, Fill2Vbs, VbsRecord, Mem2Vbs}
	fromNetSet = []Mode{Net2Out, Net2Disk, Net2Fork, Net2File, Net2Check, Net2Sfxc, Net2SfxcFork,
		Splet2Net, Splet2File, Net2Mem, Net2Vbs, VbsRecord}
	toNetSet = []Mode{Disk2Net, In2Net, Fill2Net, Spill2Net, Spid2Net, Spin2Net, Splet2Net,
		Spif2Net, Spbs2Net, Mem2Net, File2Net, Vbs2Net, Stream2Sfxc}
	fromIOSet = []Mode{In2Net, In2Disk, In2Fork, In2File, Spin2Net, Spin2File, In2Mem, In2MemFork, Tvr}
	toIOSet   = []Mode{Disk2Out, Net2Out, Net2Fork, Fill2Out}
	fromDiskSet = []Mode{Disk2Net, Disk2Out, Disk2File, Spid2Net, Spid2File, Condition, Bankswitch,
		Stream2Sfxc, Mounting, Disk2Etransfer}
	toDiskSet = []Mode{In2Disk, Net2Disk, Net2Fork, In2MemFork, File2Disk, Condition, Bankswitch,
		Mounting, Fill2Disk}
	fromFillSet = []Mode{Fill2Net, Fill2File, Spill2Net, Spill2File, Fill2Out, Fill2Vbs, Fill2Disk}
	toQueueSet  = []Mode{File2Mem, In2Mem, In2MemFork, Net2Mem}
	isForkSet   = []Mode{Net2Fork, Net2SfxcFork, In2MemFork, In2Fork}
	fromVbsSet  = []Mode{Spbs2File, Spbs2Net, Vbs2Net}
	toVbsSet    = []Mode{Fill2Vbs, VbsRecord, Net2Vbs, Mem2Vbs}
)

func FromFile(m Mode) bool  { return inSet(m, fromFileSet) }
func ToFile(m Mode) bool    { return inSet(m, toFileSet) }
func FromNet(m Mode) bool   { return inSet(m, fromNetSet) }
func ToNet(m Mode) bool     { return inSet(m, toNetSet) }
func FromIO(m Mode) bool    { return inSet(m, fromIOSet) }
func ToIO(m Mode) bool      { return inSet(m, toIOSet) }
func FromDisk(m Mode) bool  { return inSet(m, fromDiskSet) }
func ToDisk(m Mode) bool    { return inSet(m, toDiskSet) }
func FromFill(m Mode) bool  { return inSet(m, fromFillSet) }
func ToQueue(m Mode) bool   { return inSet(m, toQueueSet) }
func IsFork(m Mode) bool    { return inSet(m, isForkSet) }
func FromVbs(m Mode) bool   { return inSet(m, fromVbsSet) }
func ToVbs(m Mode) bool     { return inSet(m, toVbsSet) }

// DiskUnavail reports whether m occupies the disk subsystem for a
// reason other than ordinary I/O (conditioning, bank switching,
// mounting), during which no other disk transfer can start.
func DiskUnavail(m Mode) bool {
	return m == Condition || m == Bankswitch || m == Mounting
}

// StreamstorBusy reports whether m claims the shared StreamStor/disk
// hardware resource, used by the admission rule to reject a competing
// disk-touching mode while m is active.
func StreamstorBusy(m Mode) bool {
	return DiskUnavail(m) || ToIO(m) || FromIO(m) || ToDisk(m) || FromDisk(m)
}
