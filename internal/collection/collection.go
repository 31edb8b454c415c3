package collection

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"dupview/internal/naming"
)

// OrphanReason explains why an incremental set is outside every chain.
type OrphanReason int

const (
	// OrphanNoFull: no full set with the same prefix exists at or before
	// the incremental's start.
	OrphanNoFull OrphanReason = iota + 1
	// OrphanBrokenChain: no chain ends where the incremental starts.
	OrphanBrokenChain
	// OrphanSuperseded: another incremental with the same start and a later
	// end claimed the extension point.
	OrphanSuperseded
)

func (r OrphanReason) String() string {
	switch r {
	case OrphanNoFull:
		return "no full backup"
	case OrphanBrokenChain:
		return "broken chain"
	case OrphanSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("OrphanReason(%d)", int(r))
	}
}

// Chain is a full set followed by temporally contiguous incrementals.
// Sets holds indexes into Collections.Sets; Sets[0] is the full set.
type Chain struct {
	Prefix string
	Sets   []int
	Start  time.Time
	End    time.Time
}

// Len is the number of snapshots in the chain.
func (c Chain) Len() int {
	return len(c.Sets)
}

// Orphan is a set that could not be attached to any chain.
type Orphan struct {
	Set    int
	Reason OrphanReason
}

// Collections is the reconstructed structure of a backend listing.
type Collections struct {
	Sets         []BackupSet
	Chains       []Chain // ascending start time
	Orphans      []Orphan
	Unrecognized []string
}

// Primary returns the most recent chain, or false if there is none.
func (c *Collections) Primary() (int, bool) {
	if len(c.Chains) == 0 {
		return 0, false
	}
	return len(c.Chains) - 1, true
}

// ChainSet returns the set at snapshot index i of chain ch.
func (c *Collections) ChainSet(ch, i int) *BackupSet {
	return &c.Sets[c.Chains[ch].Sets[i]]
}

// Flag records a late-discovered issue on set i. Chain membership is not
// affected: the set's timestamp stays listed in its chain.
func (c *Collections) Flag(i int, issue Issue) {
	c.Sets[i].Flag(issue)
}

// FromNames classifies a raw backend listing and builds collections from
// the recognized names. Unrecognized names are kept, sorted, for reporting.
func FromNames(names []string) *Collections {
	var files []File
	var unrecognized []string
	for _, name := range names {
		d, ok := naming.Classify(name)
		if !ok {
			unrecognized = append(unrecognized, name)
			continue
		}
		files = append(files, File{Name: name, Descriptor: d})
	}
	c := Build(files)
	slices.Sort(unrecognized)
	c.Unrecognized = unrecognized
	return c
}

type setKey struct {
	prefix string
	typ    SetType
	start  int64
	end    int64
}

// Build groups files into sets and links the sets into chains. The result
// does not depend on the order of files.
func Build(files []File) *Collections {
	files = slices.Clone(files)
	slices.SortFunc(files, func(a, b File) int { return cmp.Compare(a.Name, b.Name) })

	groups := make(map[setKey]*BackupSet)
	for _, f := range files {
		k := keyOf(f.Descriptor)
		s, ok := groups[k]
		if !ok {
			s = &BackupSet{Type: k.typ, Prefix: f.Prefix, End: f.Time, Start: f.Time}
			if f.Range != nil {
				s.Start = f.Range.Start
			}
			groups[k] = s
		}
		s.add(f)
	}

	sets := make([]BackupSet, 0, len(groups))
	for _, s := range groups {
		s.finish()
		sets = append(sets, *s)
	}
	slices.SortFunc(sets, compareSets)

	c := &Collections{Sets: sets}
	c.link()
	return c
}

func keyOf(d naming.Descriptor) setKey {
	k := setKey{prefix: d.Prefix, typ: SetFull, start: d.Time.Unix(), end: d.Time.Unix()}
	if d.Range != nil {
		k.typ = SetIncremental
		k.start = d.Range.Start.Unix()
	}
	return k
}

func compareSets(a, b BackupSet) int {
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Prefix, b.Prefix); c != 0 {
		return c
	}
	return a.Start.Compare(b.Start)
}

// finish sorts volumes, derives set-level flags and records structural
// issues visible from the listing alone.
func (s *BackupSet) finish() {
	slices.SortFunc(s.Volumes, func(a, b File) int { return cmp.Compare(a.Volume, b.Volume) })
	slices.SortFunc(s.Duplicates, func(a, b File) int { return cmp.Compare(a.Name, b.Name) })

	for _, f := range s.Files() {
		s.Compressed = s.Compressed || f.Compressed
		s.Encrypted = s.Encrypted || f.Encrypted
	}

	if s.Manifest == nil {
		s.Flag(Issue{Kind: IssueMissingManifest})
	} else if s.Manifest.Partial {
		s.Flag(Issue{Kind: IssuePartialUpload, Detail: s.Manifest.Name})
	}
	if s.Signature == nil {
		s.Flag(Issue{Kind: IssueMissingSignature})
	} else if s.Signature.Partial {
		s.Flag(Issue{Kind: IssuePartialUpload, Detail: s.Signature.Name})
	}
	if len(s.Volumes) == 0 {
		s.Flag(Issue{Kind: IssueMissingVolume, Detail: "no data volumes"})
	}
	for i, v := range s.Volumes {
		if v.Volume != i+1 {
			s.Flag(Issue{Kind: IssueMissingVolume, Detail: fmt.Sprintf("volume %d", i+1)})
			break
		}
	}
}

// link assigns every set either to a chain or to the orphan list.
//
// Every full set starts a chain. Incrementals are visited by ascending
// start and, for equal starts, descending end; each one extends the
// same-prefix chain that currently ends at its start. When several chains
// qualify the one with the latest full set wins. An incremental that finds
// no chain is an orphan.
func (c *Collections) link() {
	var incs []int
	for i := range c.Sets {
		s := &c.Sets[i]
		if s.Type == SetFull {
			c.Chains = append(c.Chains, Chain{Prefix: s.Prefix, Sets: []int{i}, Start: s.Start, End: s.End})
			continue
		}
		incs = append(incs, i)
	}

	slices.SortStableFunc(incs, func(a, b int) int {
		sa, sb := &c.Sets[a], &c.Sets[b]
		if r := sa.Start.Compare(sb.Start); r != 0 {
			return r
		}
		if r := sb.End.Compare(sa.End); r != 0 {
			return r
		}
		return cmp.Compare(sa.Prefix, sb.Prefix)
	})

	for _, i := range incs {
		s := &c.Sets[i]
		best := -1
		for ch := range c.Chains {
			chain := &c.Chains[ch]
			if chain.Prefix != s.Prefix || !chain.End.Equal(s.Start) {
				continue
			}
			if best < 0 || !chain.Start.Before(c.Chains[best].Start) {
				best = ch
			}
		}
		if best >= 0 {
			chain := &c.Chains[best]
			chain.Sets = append(chain.Sets, i)
			chain.End = s.End
			continue
		}
		c.Orphans = append(c.Orphans, Orphan{Set: i, Reason: c.orphanReason(s)})
	}

	slices.SortFunc(c.Orphans, func(a, b Orphan) int { return cmp.Compare(a.Set, b.Set) })
	slices.SortStableFunc(c.Chains, func(a, b Chain) int {
		if r := a.Start.Compare(b.Start); r != 0 {
			return r
		}
		return cmp.Compare(a.Prefix, b.Prefix)
	})
}

func (c *Collections) orphanReason(s *BackupSet) OrphanReason {
	hasFull := false
	for _, ch := range c.Chains {
		if ch.Prefix != s.Prefix || ch.Start.After(s.Start) {
			continue
		}
		hasFull = true
		for _, idx := range ch.Sets[1:] {
			if c.Sets[idx].Start.Equal(s.Start) {
				return OrphanSuperseded
			}
		}
	}
	if !hasFull {
		return OrphanNoFull
	}
	return OrphanBrokenChain
}
