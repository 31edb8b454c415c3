package dv

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"dupview/internal/collection"
	"dupview/internal/rawpath"
	"dupview/internal/sigtar"
)

// FileVersion is a change to one path between consecutive snapshots.
type FileVersion struct {
	Index   int
	Time    time.Time
	Stat    *sigtar.Stat // nil when the path was deleted at this snapshot
	Deleted bool
}

// FileHistory returns every snapshot of chain ch at which path appeared,
// changed or disappeared, newest first.
func (s *DVService) FileHistory(ctx context.Context, cols *collection.Collections, ch int, path []byte) ([]*FileVersion, error) {
	s.logger.Debug("fetching file history", "chain", ch, "path", rawpath.Display(path))

	p, err := s.NewProjector(cols, ch)
	if err != nil {
		return nil, err
	}

	var versions []*FileVersion
	var prev *sigtar.Stat
	for i := range p.Len() {
		if err := p.Seek(ctx, i); err != nil {
			return nil, fmt.Errorf("projecting snapshot %d: %w", i, err)
		}
		st, _ := p.Lookup(path)
		if sameStat(prev, st) {
			continue
		}
		versions = append(versions, &FileVersion{
			Index:   i,
			Time:    cols.ChainSet(ch, i).Time(),
			Stat:    st,
			Deleted: st == nil,
		})
		prev = st
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchPath, rawpath.Display(path))
	}

	slices.Reverse(versions) // newest first
	return versions, nil
}

// sameStat compares two states of a path by their raw tar headers, which
// carry every recorded attribute.
func sameStat(a, b *sigtar.Stat) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Header, b.Header)
}

// History returns the most recent operations, newest first.
func (s *DVService) History(limit int) ([]*Operation, error) {
	if s.catalog == nil {
		return nil, nil
	}
	ops, err := s.catalog.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// ScanHistory returns the most recent scans of this service's location,
// newest first.
func (s *DVService) ScanHistory(limit int) ([]*ScanRecord, error) {
	if s.catalog == nil {
		return nil, nil
	}
	scans, err := s.catalog.ListScans(s.backend.Location(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return scans, nil
}

// ScanDetail returns a recorded scan with its sets.
func (s *DVService) ScanDetail(id string) (*ScanRecord, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: no catalog configured", ErrNoSuchScan)
	}
	scan, err := s.catalog.FindScan(id)
	if err != nil {
		return nil, fmt.Errorf("finding scan: %w", err)
	}
	if scan == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchScan, id)
	}
	return scan, nil
}
