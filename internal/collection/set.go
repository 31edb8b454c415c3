package collection

import (
	"fmt"
	"time"

	"dupview/internal/naming"
)

// File is one recognized backend entry.
type File struct {
	Name string
	naming.Descriptor
}

// SetType distinguishes full sets from incremental ones.
type SetType int

const (
	SetFull SetType = iota + 1
	SetIncremental
)

func (t SetType) String() string {
	switch t {
	case SetFull:
		return "full"
	case SetIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("SetType(%d)", int(t))
	}
}

// IssueKind enumerates the reasons a set cannot be fully trusted.
type IssueKind int

const (
	IssueMissingManifest IssueKind = iota + 1
	IssueMissingSignature
	IssueMissingVolume
	IssuePartialUpload
	IssueManifestMalformed
	IssueVolumeCountMismatch
	IssueUnreadable
)

func (k IssueKind) String() string {
	switch k {
	case IssueMissingManifest:
		return "missing manifest"
	case IssueMissingSignature:
		return "missing signature"
	case IssueMissingVolume:
		return "missing volume"
	case IssuePartialUpload:
		return "partial upload"
	case IssueManifestMalformed:
		return "malformed manifest"
	case IssueVolumeCountMismatch:
		return "volume count mismatch"
	case IssueUnreadable:
		return "unreadable"
	default:
		return fmt.Sprintf("IssueKind(%d)", int(k))
	}
}

// Issue annotates a set with something that makes it incomplete.
type Issue struct {
	Kind   IssueKind
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return i.Kind.String()
	}
	return i.Kind.String() + ": " + i.Detail
}

// BackupSet is every file belonging to one dated snapshot.
type BackupSet struct {
	Type   SetType
	Prefix string
	// Start equals End for full sets.
	Start time.Time
	End   time.Time

	Manifest  *File
	Signature *File
	Volumes   []File // ascending volume number, one per number

	// Duplicates holds files that lost the preference contest for a role.
	Duplicates []File

	Compressed bool
	Encrypted  bool
	Issues     []Issue
}

// Time is the snapshot time: when the set's state was captured.
func (s *BackupSet) Time() time.Time {
	return s.End
}

// Complete reports whether nothing is known to be wrong with the set.
func (s *BackupSet) Complete() bool {
	return len(s.Issues) == 0
}

// HasIssue reports whether the set carries an issue of the given kind.
func (s *BackupSet) HasIssue(kind IssueKind) bool {
	for _, i := range s.Issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

// Files lists the set's members: manifest, signature, then volumes.
func (s *BackupSet) Files() []File {
	var out []File
	if s.Manifest != nil {
		out = append(out, *s.Manifest)
	}
	if s.Signature != nil {
		out = append(out, *s.Signature)
	}
	return append(out, s.Volumes...)
}

// add places f in the set, resolving role conflicts with prefer.
func (s *BackupSet) add(f File) {
	switch f.Kind {
	case naming.KindManifest:
		s.Manifest = s.pick(s.Manifest, f)
	case naming.KindSignature:
		s.Signature = s.pick(s.Signature, f)
	default:
		for i := range s.Volumes {
			if s.Volumes[i].Volume == f.Volume {
				s.Volumes[i] = *s.pick(&s.Volumes[i], f)
				return
			}
		}
		s.Volumes = append(s.Volumes, f)
	}
}

func (s *BackupSet) pick(cur *File, f File) *File {
	if cur == nil {
		return &f
	}
	if prefer(f, *cur) {
		s.Duplicates = append(s.Duplicates, *cur)
		return &f
	}
	s.Duplicates = append(s.Duplicates, f)
	return cur
}

// prefer reports whether a should win over b for the same role:
// complete uploads first, then unencrypted, then the smaller name.
func prefer(a, b File) bool {
	if a.Partial != b.Partial {
		return !a.Partial
	}
	if a.Encrypted != b.Encrypted {
		return !a.Encrypted
	}
	return a.Name < b.Name
}

// Flag records an issue discovered after the set was built, such as a
// manifest that failed to parse.
func (s *BackupSet) Flag(issue Issue) {
	for _, i := range s.Issues {
		if i == issue {
			return
		}
	}
	s.Issues = append(s.Issues, issue)
}
