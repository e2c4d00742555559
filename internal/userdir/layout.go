package userdir

import "fmt"

// ModuleHeader mirrors original_source's EnhancedDirectoryHeader: the
// vendor VSN/companion/continuation strings an "enhanced" directory
// prepends or appends alongside the plain ScanDir.
type ModuleHeader struct {
	DirectoryVersion int32
	Status           uint32
	VSN              [32]byte
	CompanionVSN     [32]byte
	ContinuedToVSN   [32]byte
	Spare            [24]byte
}

// DriveInfo mirrors original_source's SDK8/SDK9 *_DRIVEINFO vendor
// block; different SDK versions report Capacity as 32 or 64 bits, one
// of the "size mismatches between SDK versions" spec.md §6 mentions.
// This package always uses the wider (SDK9-style) 64-bit field and
// pads accordingly, rather than carrying both historical shapes.
type DriveInfo struct {
	Model        [64]byte
	Serial       [32]byte
	Revision     [16]byte
	Capacity     uint64
	SMARTCapable uint8
	SMARTState   uint8
	Spare        [6]byte
}

// Layout discriminates the three on-disk size variants spec.md §6
// describes: a bare scan directory, one with the vendor module header
// appended, and one that also carries a drive-info block.
type Layout int

const (
	LayoutBasic Layout = iota
	LayoutEnhanced
	LayoutEnhancedWithDriveInfo
)

func (l Layout) String() string {
	switch l {
	case LayoutBasic:
		return "basic"
	case LayoutEnhanced:
		return "enhanced"
	case LayoutEnhancedWithDriveInfo:
		return "enhanced+driveinfo"
	default:
		return fmt.Sprintf("userdir.Layout(%d)", int(l))
	}
}

var (
	basicSize    = sizeOf(ScanDir{})
	enhancedSize = basicSize + sizeOf(ModuleHeader{})
	fullSize     = enhancedSize + sizeOf(DriveInfo{})
)

// DetectLayout discriminates a layout variant purely from the total
// byte size of a persisted blob, the mechanism spec.md §6 describes
// ("three layout variants are discriminated by total size").
func DetectLayout(totalSize int) (Layout, error) {
	switch totalSize {
	case basicSize:
		return LayoutBasic, nil
	case enhancedSize:
		return LayoutEnhanced, nil
	case fullSize:
		return LayoutEnhancedWithDriveInfo, nil
	default:
		return 0, fmt.Errorf("userdir: size %d matches no known layout (basic=%d, enhanced=%d, enhanced+driveinfo=%d)",
			totalSize, basicSize, enhancedSize, fullSize)
	}
}

// Size returns the on-disk byte size of a layout variant.
func (l Layout) Size() int {
	switch l {
	case LayoutBasic:
		return basicSize
	case LayoutEnhanced:
		return enhancedSize
	case LayoutEnhancedWithDriveInfo:
		return fullSize
	default:
		return 0
	}
}

// Directory is the full persisted user-directory region: the scan
// table plus whichever vendor blocks its Layout calls for.
type Directory struct {
	Layout Layout
	Scans  ScanDir
	Header ModuleHeader
	Drive  DriveInfo
}
