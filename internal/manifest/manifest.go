package manifest

import (
	"errors"
	"slices"

	"dupview/internal/rawpath"
)

// ErrMalformed is wrapped by every parse failure. A manifest that fails to
// parse is rejected as a whole.
var ErrMalformed = errors.New("malformed manifest")

// Status of a path in the manifest's file list.
type Status string

const (
	StatusChanged Status = "changed"
	StatusNew     Status = "new"
	StatusDeleted Status = "deleted"
)

// ChangedFile is one entry of the optional Filelist section.
type ChangedFile struct {
	Status Status
	Path   []byte
}

// PathBlock is a path, optionally narrowed to a block within a file that
// is split across volumes. The root directory is the empty path.
type PathBlock struct {
	Path     []byte
	Block    int
	HasBlock bool
}

// Hash is a checksum of a volume file.
type Hash struct {
	Type string
	Sum  []byte
}

// Volume describes the range of paths stored in one data volume.
type Volume struct {
	Number int
	Start  PathBlock
	End    PathBlock
	Hashes []Hash
}

// Hash returns the first recorded checksum, if any.
func (v *Volume) Hash() (Hash, bool) {
	if len(v.Hashes) == 0 {
		return Hash{}, false
	}
	return v.Hashes[0], true
}

// Manifest is the parsed description of one backup set.
type Manifest struct {
	Hostname string
	LocalDir []byte
	Files    []ChangedFile
	// Volumes[i].Number == i+1.
	Volumes []Volume
}

// Volume returns the volume with the given 1-based number.
func (m *Manifest) Volume(n int) (*Volume, bool) {
	if n < 1 || n > len(m.Volumes) {
		return nil, false
	}
	return &m.Volumes[n-1], true
}

// FirstVolumeOf returns the number of the first volume holding data for path.
func (m *Manifest) FirstVolumeOf(path []byte) (int, bool) {
	i, found := slices.BinarySearchFunc(m.Volumes, path, func(v Volume, p []byte) int {
		switch c := rawpath.Compare(p, v.Start.Path); {
		case c < 0:
			return 1
		case c > 0:
			if rawpath.Compare(p, v.End.Path) <= 0 {
				return 0
			}
			return -1
		default:
			// a volume starting mid-file is not the first one for it
			if v.Start.HasBlock && v.Start.Block > 0 {
				return 1
			}
			return 0
		}
	})
	if !found {
		return 0, false
	}
	return i + 1, true
}

// LastVolumeOf returns the number of the last volume holding data for path.
func (m *Manifest) LastVolumeOf(path []byte) (int, bool) {
	rel := func(v *Volume) int {
		switch c := rawpath.Compare(path, v.End.Path); {
		case c > 0:
			return -1
		case c < 0:
			if rawpath.Compare(path, v.Start.Path) >= 0 {
				return 0
			}
			return 1
		default:
			// a volume ending mid-file continues in the next one
			if v.End.HasBlock {
				return -1
			}
			return 0
		}
	}
	// first index ordered strictly after path
	lo, hi := 0, len(m.Volumes)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if rel(&m.Volumes[mid]) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 || rel(&m.Volumes[lo-1]) != 0 {
		return 0, false
	}
	return lo, true
}
