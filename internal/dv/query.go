package dv

import (
	"context"
	"fmt"
	"io"
	"time"

	"dupview/internal/collection"
	"dupview/internal/snapshot"
)

// SnapshotInfo describes one point in time of a chain.
type SnapshotInfo struct {
	Index    int
	Set      int // index into Collections.Sets
	Type     collection.SetType
	Time     time.Time
	Volumes  int
	Complete bool
}

// Snapshots lists the snapshots of chain ch, oldest first.
func (s *DVService) Snapshots(cols *collection.Collections, ch int) ([]SnapshotInfo, error) {
	chain, err := lookupChain(cols, ch)
	if err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, chain.Len())
	for i, si := range chain.Sets {
		set := &cols.Sets[si]
		infos[i] = SnapshotInfo{
			Index:    i,
			Set:      si,
			Type:     set.Type,
			Time:     set.Time(),
			Volumes:  len(set.Volumes),
			Complete: set.Complete(),
		}
	}
	return infos, nil
}

// NewProjector returns a projector over the signature archives of chain ch.
// Each caller gets its own projector.
func (s *DVService) NewProjector(cols *collection.Collections, ch int) (*snapshot.Projector, error) {
	chain, err := lookupChain(cols, ch)
	if err != nil {
		return nil, err
	}
	src := &chainSource{svc: s, cols: cols, chain: ch}
	return snapshot.NewProjector(src, chain.Len()), nil
}

// Entries returns the live entries of snapshot index of chain ch, ordered
// by path.
func (s *DVService) Entries(ctx context.Context, cols *collection.Collections, ch, index int) ([]snapshot.Entry, error) {
	p, err := s.NewProjector(cols, ch)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= p.Len() {
		return nil, fmt.Errorf("%w: chain %d has no snapshot %d", ErrNoSuchSnapshot, ch, index)
	}
	if err := p.Seek(ctx, index); err != nil {
		return nil, fmt.Errorf("projecting snapshot %d: %w", index, err)
	}
	entries := p.Entries()
	s.logger.Debug("snapshot projected", "chain", ch, "index", index, "entries", len(entries))
	return entries, nil
}

func lookupChain(cols *collection.Collections, ch int) (collection.Chain, error) {
	if ch < 0 || ch >= len(cols.Chains) {
		return collection.Chain{}, fmt.Errorf("%w: %d", ErrNoSuchChain, ch)
	}
	return cols.Chains[ch], nil
}

// chainSource opens the signature archives of one chain for a projector.
type chainSource struct {
	svc   *DVService
	cols  *collection.Collections
	chain int
}

func (c *chainSource) Open(ctx context.Context, i int) (io.ReadCloser, error) {
	set := c.cols.ChainSet(c.chain, i)
	sig := set.Signature
	if sig == nil {
		return nil, fmt.Errorf("%w: %s has no signatures", ErrSetIncomplete, describeSet(set))
	}
	if sig.Partial {
		return nil, fmt.Errorf("%w: %s was not fully uploaded", ErrSetIncomplete, sig.Name)
	}
	c.svc.logger.Debug("reading signatures", "name", sig.Name)
	return c.svc.open(ctx, *sig)
}

var _ snapshot.Source = (*chainSource)(nil)
