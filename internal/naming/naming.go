package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the compact UTC timestamp written into archive file names.
const TimeLayout = "20060102T150405Z"

// Kind is the closed set of archive file families.
type Kind int

const (
	KindFull Kind = iota + 1
	KindIncremental
	KindManifest
	KindSignature
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindIncremental:
		return "incremental"
	case KindManifest:
		return "manifest"
	case KindSignature:
		return "signature"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// TimeRange is the [Start, End) interval covered by an incremental file.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Descriptor is the typed reading of one recognized archive file name.
type Descriptor struct {
	Prefix string
	Kind   Kind
	// Time is the set time: the full backup time, or the range end for
	// incremental files.
	Time time.Time
	// Range is set only for files that belong to an incremental set.
	Range      *TimeRange
	Volume     int // 0 for manifests and signatures
	Compressed bool
	Encrypted  bool
	Partial    bool
}

// Incremental reports whether the file belongs to an incremental set.
func (d Descriptor) Incremental() bool {
	return d.Range != nil
}

// Equal compares descriptors by value, including time instants.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Prefix != o.Prefix || d.Kind != o.Kind || !d.Time.Equal(o.Time) ||
		d.Volume != o.Volume || d.Compressed != o.Compressed ||
		d.Encrypted != o.Encrypted || d.Partial != o.Partial {
		return false
	}
	if (d.Range == nil) != (o.Range == nil) {
		return false
	}
	if d.Range != nil {
		return d.Range.Start.Equal(o.Range.Start) && d.Range.End.Equal(o.Range.End)
	}
	return true
}

// Name encodes the descriptor into its canonical file name.
func (d Descriptor) Name() string {
	var b strings.Builder
	b.WriteString(d.Prefix)
	b.WriteByte('-')

	switch {
	case d.Kind == KindSignature && d.Incremental():
		b.WriteString("new-signatures")
	case d.Kind == KindSignature:
		b.WriteString("full-signatures")
	case d.Incremental():
		b.WriteString("inc")
	default:
		b.WriteString("full")
	}

	b.WriteByte('.')
	if d.Incremental() {
		b.WriteString(FormatTime(d.Range.Start))
		b.WriteString(".to.")
		b.WriteString(FormatTime(d.Range.End))
	} else {
		b.WriteString(FormatTime(d.Time))
	}

	switch d.Kind {
	case KindFull, KindIncremental:
		fmt.Fprintf(&b, ".vol%d.difftar", d.Volume)
	case KindManifest:
		b.WriteString(".manifest")
	case KindSignature:
		b.WriteString(".sigtar")
	}

	if d.Partial {
		b.WriteString(".part")
	}
	if d.Compressed {
		b.WriteString(".gz")
	}
	if d.Encrypted {
		b.WriteString(".gpg")
	}
	return b.String()
}

// FormatTime renders t in the compact UTC form used in file names.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the compact file-name form (any case) or RFC 3339 with
// an explicit offset. The result is always in UTC.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, strings.ToUpper(s)); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, strings.ToUpper(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

var namePattern = regexp.MustCompile(
	`(?i)^(.+?)-(full-signatures|new-signatures|full|inc)\.([^.]+)(?:\.to\.([^.]+))?\.(?:vol([0-9]+)\.difftar|(manifest)|(sigtar))((?:\.[a-z]+)*)$`)

// Classify parses an archive file name. The boolean is false when the name
// is not part of the archive grammar; that is a skip signal, not an error.
func Classify(name string) (Descriptor, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Descriptor{}, false
	}
	prefix, family, ts1, ts2 := m[1], strings.ToLower(m[2]), m[3], m[4]
	volStr, isManifest, isSig, suffix := m[5], m[6] != "", m[7] != "", m[8]

	d := Descriptor{Prefix: prefix}
	incremental := ts2 != ""

	switch family {
	case "full":
		if incremental || isSig {
			return Descriptor{}, false
		}
	case "inc":
		if !incremental || isSig {
			return Descriptor{}, false
		}
	case "full-signatures":
		if incremental || !isSig {
			return Descriptor{}, false
		}
	case "new-signatures":
		if !incremental || !isSig {
			return Descriptor{}, false
		}
	}

	switch {
	case isManifest:
		d.Kind = KindManifest
	case isSig:
		d.Kind = KindSignature
	case incremental:
		d.Kind = KindIncremental
	default:
		d.Kind = KindFull
	}

	if volStr != "" {
		n, err := strconv.Atoi(volStr)
		if err != nil || n < 1 {
			return Descriptor{}, false
		}
		d.Volume = n
	}

	t1, err := ParseTime(ts1)
	if err != nil {
		return Descriptor{}, false
	}
	if incremental {
		t2, err := ParseTime(ts2)
		if err != nil || !t1.Before(t2) {
			return Descriptor{}, false
		}
		d.Range = &TimeRange{Start: t1, End: t2}
		d.Time = t2
	} else {
		d.Time = t1
	}

	if !parseSuffix(&d, suffix) {
		return Descriptor{}, false
	}
	return d, true
}

// parseSuffix reads the trailing ".part", ".gz"/".z" and ".gpg"/".g" flags.
// Each flag may appear once; ".part" must come first and is only valid for
// manifests and signatures.
func parseSuffix(d *Descriptor, suffix string) bool {
	if suffix == "" {
		return true
	}
	for i, tok := range strings.Split(strings.ToLower(suffix[1:]), ".") {
		switch tok {
		case "part":
			if i != 0 || (d.Kind != KindManifest && d.Kind != KindSignature) {
				return false
			}
			d.Partial = true
		case "gz", "z":
			if d.Compressed {
				return false
			}
			d.Compressed = true
		case "gpg", "g":
			if d.Encrypted {
				return false
			}
			d.Encrypted = true
		default:
			return false
		}
	}
	return true
}
