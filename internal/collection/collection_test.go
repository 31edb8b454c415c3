package collection

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"dupview/internal/naming"
)

var (
	t0 = time.Date(2015, 6, 17, 18, 25, 45, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
	t2 = t1.Add(24 * time.Hour)
	t3 = t2.Add(24 * time.Hour)
)

func fullNames(prefix string, at time.Time, vols int) []string {
	names := []string{
		naming.Descriptor{Prefix: prefix, Kind: naming.KindManifest, Time: at}.Name(),
		naming.Descriptor{Prefix: prefix, Kind: naming.KindSignature, Time: at, Compressed: true}.Name(),
	}
	for v := 1; v <= vols; v++ {
		names = append(names, naming.Descriptor{Prefix: prefix, Kind: naming.KindFull, Time: at, Volume: v, Compressed: true}.Name())
	}
	return names
}

func incNames(prefix string, start, end time.Time, vols int) []string {
	r := &naming.TimeRange{Start: start, End: end}
	names := []string{
		naming.Descriptor{Prefix: prefix, Kind: naming.KindManifest, Time: end, Range: r}.Name(),
		naming.Descriptor{Prefix: prefix, Kind: naming.KindSignature, Time: end, Range: r, Compressed: true}.Name(),
	}
	for v := 1; v <= vols; v++ {
		names = append(names, naming.Descriptor{Prefix: prefix, Kind: naming.KindIncremental, Time: end, Range: r, Volume: v, Compressed: true}.Name())
	}
	return names
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func TestFromNames_SingleChain(t *testing.T) {
	names := concat(
		fullNames("duplicity", t0, 2),
		incNames("duplicity", t0, t1, 1),
		incNames("duplicity", t1, t2, 1),
		[]string{"README", "lost+found"},
	)

	c := FromNames(names)

	if len(c.Chains) != 1 {
		t.Fatalf("len(Chains) = %d, want 1", len(c.Chains))
	}
	ch := c.Chains[0]
	if ch.Len() != 3 {
		t.Fatalf("chain.Len() = %d, want 3", ch.Len())
	}
	if !ch.Start.Equal(t0) || !ch.End.Equal(t2) {
		t.Errorf("chain span = %v..%v, want %v..%v", ch.Start, ch.End, t0, t2)
	}
	if got := c.ChainSet(0, 0); got.Type != SetFull || len(got.Volumes) != 2 || !got.Complete() {
		t.Errorf("full set = %+v, want complete full set with 2 volumes", got)
	}
	if len(c.Orphans) != 0 {
		t.Errorf("Orphans = %v, want none", c.Orphans)
	}
	if !reflect.DeepEqual(c.Unrecognized, []string{"README", "lost+found"}) {
		t.Errorf("Unrecognized = %v", c.Unrecognized)
	}
	if p, ok := c.Primary(); !ok || p != 0 {
		t.Errorf("Primary() = %d, %v", p, ok)
	}
}

func TestFromNames_Orphans(t *testing.T) {
	t.Run("gap in continuity", func(t *testing.T) {
		c := FromNames(concat(
			fullNames("duplicity", t0, 1),
			incNames("duplicity", t0, t1, 1),
			incNames("duplicity", t2, t3, 1),
		))
		if len(c.Chains) != 1 || c.Chains[0].Len() != 2 {
			t.Fatalf("Chains = %+v, want one chain of 2", c.Chains)
		}
		if len(c.Orphans) != 1 {
			t.Fatalf("Orphans = %+v, want 1", c.Orphans)
		}
		o := c.Orphans[0]
		if o.Reason != OrphanBrokenChain || !c.Sets[o.Set].Start.Equal(t2) {
			t.Errorf("orphan = %+v (%v), want broken chain starting at t2", o, c.Sets[o.Set].Start)
		}
	})

	t.Run("no full set", func(t *testing.T) {
		c := FromNames(incNames("duplicity", t0, t1, 1))
		if len(c.Chains) != 0 {
			t.Fatalf("Chains = %+v, want none", c.Chains)
		}
		if len(c.Orphans) != 1 || c.Orphans[0].Reason != OrphanNoFull {
			t.Errorf("Orphans = %+v, want one without full", c.Orphans)
		}
	})

	t.Run("different prefix does not chain", func(t *testing.T) {
		c := FromNames(concat(fullNames("a", t0, 1), incNames("b", t0, t1, 1)))
		if len(c.Orphans) != 1 || c.Orphans[0].Reason != OrphanNoFull {
			t.Errorf("Orphans = %+v, want one without full", c.Orphans)
		}
	})

	t.Run("competing incrementals", func(t *testing.T) {
		c := FromNames(concat(
			fullNames("duplicity", t0, 1),
			incNames("duplicity", t0, t1, 1),
			incNames("duplicity", t0, t2, 1),
		))
		if len(c.Chains) != 1 || c.Chains[0].Len() != 2 {
			t.Fatalf("Chains = %+v, want one chain of 2", c.Chains)
		}
		if !c.Chains[0].End.Equal(t2) {
			t.Errorf("chain end = %v, want latest end %v", c.Chains[0].End, t2)
		}
		if len(c.Orphans) != 1 || c.Orphans[0].Reason != OrphanSuperseded {
			t.Errorf("Orphans = %+v, want one superseded", c.Orphans)
		}
	})
}

func TestFromNames_MultipleChains(t *testing.T) {
	c := FromNames(concat(
		fullNames("duplicity", t0, 1),
		incNames("duplicity", t0, t1, 1),
		fullNames("duplicity", t1, 1),
		incNames("duplicity", t1, t2, 1),
	))

	if len(c.Chains) != 2 {
		t.Fatalf("len(Chains) = %d, want 2", len(c.Chains))
	}
	if !c.Chains[0].Start.Equal(t0) || !c.Chains[1].Start.Equal(t1) {
		t.Errorf("chains not in ascending start order: %+v", c.Chains)
	}
	if c.Chains[0].Len() != 2 || c.Chains[1].Len() != 2 {
		t.Errorf("the newer full set should take the t1 increment: %+v", c.Chains)
	}
	if p, _ := c.Primary(); p != 1 {
		t.Errorf("Primary() = %d, want 1", p)
	}
}

func TestBuild_SetIssues(t *testing.T) {
	t.Run("missing manifest and volume gap", func(t *testing.T) {
		names := fullNames("duplicity", t0, 3)
		var kept []string
		for _, n := range names {
			d, _ := naming.Classify(n)
			if d.Kind == naming.KindManifest || d.Volume == 2 {
				continue
			}
			kept = append(kept, n)
		}
		c := FromNames(kept)
		s := &c.Sets[0]
		if s.Complete() {
			t.Fatal("Complete() = true, want false")
		}
		if !s.HasIssue(IssueMissingManifest) || !s.HasIssue(IssueMissingVolume) {
			t.Errorf("Issues = %v", s.Issues)
		}
	})

	t.Run("partial duplicate loses", func(t *testing.T) {
		names := fullNames("duplicity", t0, 1)
		partial := naming.Descriptor{Prefix: "duplicity", Kind: naming.KindManifest, Time: t0, Partial: true}.Name()
		c := FromNames(append(names, partial))
		s := &c.Sets[0]
		if s.Manifest == nil || s.Manifest.Partial {
			t.Fatalf("Manifest = %+v, want the complete one", s.Manifest)
		}
		if len(s.Duplicates) != 1 || s.Duplicates[0].Name != partial {
			t.Errorf("Duplicates = %+v", s.Duplicates)
		}
		if !s.Complete() {
			t.Errorf("Issues = %v, want none", s.Issues)
		}
	})

	t.Run("partial only", func(t *testing.T) {
		partial := naming.Descriptor{Prefix: "duplicity", Kind: naming.KindManifest, Time: t0, Partial: true}.Name()
		vol := naming.Descriptor{Prefix: "duplicity", Kind: naming.KindFull, Time: t0, Volume: 1, Encrypted: true}.Name()
		sig := naming.Descriptor{Prefix: "duplicity", Kind: naming.KindSignature, Time: t0}.Name()
		c := FromNames([]string{partial, vol, sig})
		s := &c.Sets[0]
		if !s.HasIssue(IssuePartialUpload) {
			t.Errorf("Issues = %v, want partial upload", s.Issues)
		}
		if !s.Encrypted || s.Compressed {
			t.Errorf("Encrypted/Compressed = %v/%v, want true/false", s.Encrypted, s.Compressed)
		}
	})

	t.Run("late flag keeps chain membership", func(t *testing.T) {
		c := FromNames(concat(fullNames("duplicity", t0, 1), incNames("duplicity", t0, t1, 1)))
		idx := c.Chains[0].Sets[1]
		c.Flag(idx, Issue{Kind: IssueManifestMalformed, Detail: "line 4"})
		c.Flag(idx, Issue{Kind: IssueManifestMalformed, Detail: "line 4"})
		if c.Sets[idx].Complete() || len(c.Sets[idx].Issues) != 1 {
			t.Errorf("Issues = %v, want one malformed manifest", c.Sets[idx].Issues)
		}
		if c.Chains[0].Len() != 2 || !c.ChainSet(0, 1).Time().Equal(t1) {
			t.Errorf("chain lost flagged set: %+v", c.Chains[0])
		}
	})
}

func archiveNames() []string {
	return concat(
		fullNames("duplicity", t0, 2),
		incNames("duplicity", t0, t1, 1),
		incNames("duplicity", t1, t2, 2),
		incNames("duplicity", t1, t3, 1),
		incNames("duplicity", t2, t3, 1),
		fullNames("other", t1, 1),
		incNames("other", t1, t3, 1),
		incNames("duplicity", t3, t3.Add(time.Hour), 1),
		[]string{"junk.txt"},
	)
}

func TestFromNames_OrderIndependent(t *testing.T) {
	names := archiveNames()
	want := FromNames(names)

	properties := gopter.NewProperties(nil)
	properties.Property("same collections for any listing order", prop.ForAll(
		func(seed int64) bool {
			shuffled := append([]string(nil), names...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			return reflect.DeepEqual(FromNames(shuffled), want)
		},
		gen.Int64(),
	))
	properties.TestingRun(t)
}

func TestFromNames_ChainContinuity(t *testing.T) {
	c := FromNames(archiveNames())
	for ci, ch := range c.Chains {
		first := &c.Sets[ch.Sets[0]]
		if first.Type != SetFull {
			t.Errorf("chain %d starts with %v", ci, first.Type)
		}
		prevEnd := first.End
		for _, idx := range ch.Sets[1:] {
			s := &c.Sets[idx]
			if s.Type != SetIncremental || !s.Start.Equal(prevEnd) {
				t.Errorf("chain %d: set %d starts at %v, previous ended at %v", ci, idx, s.Start, prevEnd)
			}
			prevEnd = s.End
		}
		if !prevEnd.Equal(ch.End) {
			t.Errorf("chain %d End = %v, want %v", ci, ch.End, prevEnd)
		}
	}

	seen := make(map[int]bool)
	for _, ch := range c.Chains {
		for _, idx := range ch.Sets {
			seen[idx] = true
		}
	}
	for _, o := range c.Orphans {
		if seen[o.Set] {
			t.Errorf("set %d is both chained and orphaned", o.Set)
		}
		seen[o.Set] = true
	}
	if len(seen) != len(c.Sets) {
		t.Errorf("%d of %d sets accounted for", len(seen), len(c.Sets))
	}
}
