package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"dupview/internal/rawpath"
	"dupview/internal/sigtar"
)

// ErrOutOfRange is returned when seeking past either end of the chain.
var ErrOutOfRange = errors.New("snapshot index out of range")

// Source opens the decoded signature archive of one chain element.
// Index 0 is the full set.
type Source interface {
	Open(ctx context.Context, index int) (io.ReadCloser, error)
}

// Entry is a live path at the projector's current snapshot.
type Entry struct {
	Path []byte
	Stat *sigtar.Stat
}

// Projector folds a chain's signature archives into the entry table of one
// snapshot at a time. It is not safe for concurrent use.
type Projector struct {
	src    Source
	length int

	index  int
	table  map[string]*sigtar.Stat
	sorted []string
}

// NewProjector returns a projector over a chain of length snapshots. It is
// positioned before the first snapshot until Seek succeeds.
func NewProjector(src Source, length int) *Projector {
	return &Projector{src: src, length: length, index: -1}
}

// Len returns the number of snapshots in the chain.
func (p *Projector) Len() int {
	return p.length
}

// Index returns the current snapshot, or -1 before the first Seek.
func (p *Projector) Index() int {
	return p.index
}

// Seek moves the projector to snapshot i. Moving forward applies only the
// increments after the current snapshot; moving backward replays from the
// full set. On error the projector stays where it was.
func (p *Projector) Seek(ctx context.Context, i int) error {
	if i < 0 || i >= p.length {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, p.length)
	}
	if i == p.index {
		return nil
	}

	if p.index < 0 || i < p.index {
		table := make(map[string]*sigtar.Stat)
		if err := p.seed(ctx, table); err != nil {
			return err
		}
		changes, err := p.collect(ctx, 1, i)
		if err != nil {
			return err
		}
		apply(table, changes)
		p.table = table
	} else {
		changes, err := p.collect(ctx, p.index+1, i)
		if err != nil {
			return err
		}
		apply(p.table, changes)
	}
	p.index = i
	p.sorted = nil
	return nil
}

// seed loads every live record of the full set's archive.
func (p *Projector) seed(ctx context.Context, table map[string]*sigtar.Stat) error {
	return p.read(ctx, 0, func(rec *sigtar.Record) {
		if rec.Role != sigtar.RoleDeleted {
			table[string(rec.Path)] = rec.Stat
		}
	})
}

// collect reads increments from..to into a change set, where a nil stat
// marks a deletion. Within one increment upserts apply before deletes.
func (p *Projector) collect(ctx context.Context, from, to int) (map[string]*sigtar.Stat, error) {
	changes := make(map[string]*sigtar.Stat)
	for i := from; i <= to; i++ {
		var deleted [][]byte
		err := p.read(ctx, i, func(rec *sigtar.Record) {
			if rec.Role == sigtar.RoleDeleted {
				deleted = append(deleted, rec.Path)
				return
			}
			changes[string(rec.Path)] = rec.Stat
		})
		if err != nil {
			return nil, err
		}
		for _, path := range deleted {
			changes[string(path)] = nil
		}
	}
	return changes, nil
}

func (p *Projector) read(ctx context.Context, i int, fn func(*sigtar.Record)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rc, err := p.src.Open(ctx, i)
	if err != nil {
		return fmt.Errorf("opening signatures of snapshot %d: %w", i, err)
	}
	defer rc.Close()

	for rec, err := range sigtar.NewReader(rc).All() {
		if err != nil {
			return fmt.Errorf("reading signatures of snapshot %d: %w", i, err)
		}
		fn(rec)
	}
	return nil
}

func apply(table, changes map[string]*sigtar.Stat) {
	for path, st := range changes {
		if st == nil {
			delete(table, path)
			continue
		}
		table[path] = st
	}
}

// Lookup returns the stat of path at the current snapshot.
func (p *Projector) Lookup(path []byte) (*sigtar.Stat, bool) {
	st, ok := p.table[string(path)]
	return st, ok
}

// Entries returns the live entries ordered by path.
func (p *Projector) Entries() []Entry {
	entries := make([]Entry, 0, len(p.table))
	for e := range p.All() {
		entries = append(entries, e)
	}
	return entries
}

// All iterates over the live entries ordered by path.
func (p *Projector) All() iter.Seq[Entry] {
	if p.sorted == nil {
		p.sorted = make([]string, 0, len(p.table))
		for path := range p.table {
			p.sorted = append(p.sorted, path)
		}
		slices.SortFunc(p.sorted, func(a, b string) int {
			return rawpath.Compare([]byte(a), []byte(b))
		})
	}
	sorted := p.sorted
	return func(yield func(Entry) bool) {
		for _, path := range sorted {
			if !yield(Entry{Path: []byte(path), Stat: p.table[path]}) {
				return
			}
		}
	}
}
