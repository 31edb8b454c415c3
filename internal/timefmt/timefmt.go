// Package timefmt renders entry metadata the way ls -l does.
package timefmt

import (
	"strings"
	"time"

	"dupview/internal/sigtar"
)

// Pretty formats t with the hour when it falls in the same year as now and
// with the year otherwise. The double space before the year keeps columns
// aligned.
func Pretty(t, now time.Time) string {
	if t.Year() == now.Year() {
		return t.Format("Jan 02 15:04")
	}
	return t.Format("Jan 02  2006")
}

// Mode renders a type character followed by rwx permission triplets,
// including setuid, setgid and sticky bits.
func Mode(mode uint32, typ sigtar.EntryType) string {
	var b strings.Builder
	b.WriteByte(typeChar(typ))

	special := mode >> 9
	for i := 2; i >= 0; i-- {
		bits := mode >> (uint(i) * 3)
		b.WriteByte(flag(bits&4 != 0, 'r'))
		b.WriteByte(flag(bits&2 != 0, 'w'))

		exec, set := bits&1 != 0, special&(1<<uint(i)) != 0
		switch {
		case set && i == 0 && exec:
			b.WriteByte('t')
		case set && i == 0:
			b.WriteByte('T')
		case set && exec:
			b.WriteByte('s')
		case set:
			b.WriteByte('S')
		default:
			b.WriteByte(flag(exec, 'x'))
		}
	}
	return b.String()
}

func flag(on bool, c byte) byte {
	if on {
		return c
	}
	return '-'
}

func typeChar(typ sigtar.EntryType) byte {
	switch typ {
	case sigtar.TypeFile:
		return '-'
	case sigtar.TypeDir:
		return 'd'
	case sigtar.TypeSymlink:
		return 'l'
	default:
		return '?'
	}
}
