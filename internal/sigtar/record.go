package sigtar

import (
	"fmt"
	"time"
)

// Role is what a record means for the snapshot it belongs to.
type Role int

const (
	// RoleBaseline: state captured by a full backup.
	RoleBaseline Role = iota + 1
	// RoleChanged: path added or modified by an incremental backup.
	RoleChanged
	// RoleDeleted: path removed by an incremental backup.
	RoleDeleted
)

func (r Role) String() string {
	switch r {
	case RoleBaseline:
		return "baseline"
	case RoleChanged:
		return "changed"
	case RoleDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// EntryType is the kind of filesystem object a record describes.
type EntryType int

const (
	TypeFile EntryType = iota + 1
	TypeDir
	TypeSymlink
	TypeSpecial
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeSpecial:
		return "special"
	default:
		return fmt.Sprintf("EntryType(%d)", int(t))
	}
}

// SizeHint bounds a file's size in bytes. Signature payloads only allow
// the size to be recovered to within one rsync block.
type SizeHint struct {
	Min int64
	Max int64
}

// Exact reports whether the size is known precisely.
func (h SizeHint) Exact() bool {
	return h.Min == h.Max
}

func (h SizeHint) String() string {
	if h.Exact() {
		return fmt.Sprintf("%d", h.Max)
	}
	return fmt.Sprintf("%d-%d", h.Min, h.Max)
}

// Stat is the metadata recorded for one path.
type Stat struct {
	Type     EntryType
	TypeFlag byte
	Size     SizeHint
	Mode     uint32 // permission bits, including setuid/setgid/sticky
	ModTime  time.Time
	UID      int
	GID      int
	Uname    string
	Gname    string
	Linkname []byte
	DevMajor int64
	DevMinor int64

	// Header is the entry's raw 512-byte tar header block, kept verbatim so
	// fields not interpreted above are not lost.
	Header     []byte
	PAXRecords map[string]string
}

// Record is one decoded signature archive entry.
type Record struct {
	Path []byte
	Role Role
	Stat *Stat // nil for deleted records
}
