package dv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"dupview/internal/collection"
	"dupview/internal/manifest"
	"dupview/internal/naming"
)

var (
	ErrNoSuchChain    = errors.New("no such chain")
	ErrNoSuchSnapshot = errors.New("no such snapshot")
	ErrNoSuchSet      = errors.New("no such backup set")
	ErrNoSuchPath     = errors.New("path not found in chain")
	ErrSetIncomplete  = errors.New("backup set incomplete")
	ErrNoSuchScan     = errors.New("no such scan")
)

// Options tunes scanning. Zero values select the defaults.
type Options struct {
	Parallelism       int
	VerifyManifests   bool
	ManifestCacheSize int
	ManifestCacheTTL  time.Duration
}

const (
	defaultParallelism       = 4
	defaultManifestCacheSize = 64
	defaultManifestCacheTTL  = 15 * time.Minute
)

// DVService answers questions about the duplicity archive at one backend
// location. Collections returned by Scan are plain values; every query
// takes the Collections it refers to.
type DVService struct {
	backend   Backend
	decoder   Decoder
	catalog   Catalog
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	opts      Options
	manifests *expirable.LRU[string, *manifest.Manifest]
}

// NewDVService creates a DVService. catalog may be nil, in which case scans
// are not recorded.
func NewDVService(backend Backend, decoder Decoder, catalog Catalog, logger Logger, clock Clock, idgen IDGenerator, opts Options) *DVService {
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.ManifestCacheSize <= 0 {
		opts.ManifestCacheSize = defaultManifestCacheSize
	}
	if opts.ManifestCacheTTL <= 0 {
		opts.ManifestCacheTTL = defaultManifestCacheTTL
	}
	return &DVService{
		backend:   backend,
		decoder:   decoder,
		catalog:   catalog,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
		manifests: expirable.NewLRU[string, *manifest.Manifest](opts.ManifestCacheSize, nil, opts.ManifestCacheTTL),
	}
}

// Scan lists the backend and rebuilds its collections. Problems with
// individual files never fail the scan; they show up as orphans, issues or
// unrecognized names. operationID links the scan to a catalog operation and
// may be 0.
func (s *DVService) Scan(ctx context.Context, operationID int64) (*collection.Collections, error) {
	location := s.backend.Location()
	names, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", location, err)
	}

	cols := collection.FromNames(names)
	s.logger.Info("backend scanned",
		"location", location,
		"files", len(names),
		"sets", len(cols.Sets),
		"chains", len(cols.Chains),
		"orphans", len(cols.Orphans),
		"unrecognized", len(cols.Unrecognized))
	for _, o := range cols.Orphans {
		s.logger.Warn("orphaned backup set", "set", describeSet(&cols.Sets[o.Set]), "reason", o.Reason.String())
	}

	if s.opts.VerifyManifests {
		if err := s.VerifyManifests(ctx, cols); err != nil {
			return nil, err
		}
	}

	if s.catalog != nil {
		rec := s.scanRecord(cols, operationID)
		if err := s.catalog.RecordScan(rec); err != nil {
			s.logger.Warn("recording scan failed", "error", err)
		} else {
			s.logger.Debug("scan recorded", "id", rec.ID)
		}
	}
	return cols, nil
}

// VerifyManifests parses the manifest of every set, in parallel, and flags
// sets whose manifest is unreadable, malformed or disagrees with the
// volumes present. Only cancellation makes it fail.
func (s *DVService) VerifyManifests(ctx context.Context, cols *collection.Collections) error {
	type result struct {
		m   *manifest.Manifest
		err error
	}
	results := make([]result, len(cols.Sets))

	var g errgroup.Group
	g.SetLimit(s.opts.Parallelism)
	for i := range cols.Sets {
		f := cols.Sets[i].Manifest
		if f == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			m, err := s.loadManifest(ctx, *f)
			results[i] = result{m: m, err: err}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("verifying manifests: %w", err)
	}

	flagged := 0
	for i, r := range results {
		set := &cols.Sets[i]
		if set.Manifest == nil {
			continue
		}
		var issue collection.Issue
		switch {
		case errors.Is(r.err, manifest.ErrMalformed):
			issue = collection.Issue{Kind: collection.IssueManifestMalformed, Detail: r.err.Error()}
		case r.err != nil:
			issue = collection.Issue{Kind: collection.IssueUnreadable, Detail: r.err.Error()}
		case len(r.m.Volumes) != len(set.Volumes):
			issue = collection.Issue{
				Kind:   collection.IssueVolumeCountMismatch,
				Detail: fmt.Sprintf("manifest lists %d volumes, found %d", len(r.m.Volumes), len(set.Volumes)),
			}
		default:
			continue
		}
		cols.Flag(i, issue)
		flagged++
		s.logger.Warn("backup set flagged", "set", describeSet(set), "issue", issue.String())
	}
	s.logger.Info("manifests verified", "sets", len(cols.Sets), "flagged", flagged)
	return nil
}

// Manifest returns the parsed manifest of set i.
func (s *DVService) Manifest(ctx context.Context, cols *collection.Collections, i int) (*manifest.Manifest, error) {
	if i < 0 || i >= len(cols.Sets) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchSet, i)
	}
	set := &cols.Sets[i]
	if set.Manifest == nil {
		return nil, fmt.Errorf("%w: %s has no manifest", ErrSetIncomplete, describeSet(set))
	}
	return s.loadManifest(ctx, *set.Manifest)
}

func (s *DVService) loadManifest(ctx context.Context, f collection.File) (*manifest.Manifest, error) {
	if m, ok := s.manifests.Get(f.Name); ok {
		return m, nil
	}

	rc, err := s.open(ctx, f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := manifest.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
	}
	s.manifests.Add(f.Name, m)
	s.logger.Debug("manifest loaded", "name", f.Name, "volumes", len(m.Volumes))
	return m, nil
}

// open returns the plaintext content of an archive file.
func (s *DVService) open(ctx context.Context, f collection.File) (io.ReadCloser, error) {
	raw, err := s.backend.Open(ctx, f.Name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	plain, err := s.decoder.Decode(raw, f.Compressed, f.Encrypted)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("decoding %s: %w", f.Name, err)
	}
	return &decodedFile{ReadCloser: plain, raw: raw}, nil
}

// decodedFile closes the decoder and the backend stream under it.
type decodedFile struct {
	io.ReadCloser
	raw io.Closer
}

func (f *decodedFile) Close() error {
	err := f.ReadCloser.Close()
	if rerr := f.raw.Close(); err == nil {
		err = rerr
	}
	return err
}

func (s *DVService) scanRecord(cols *collection.Collections, operationID int64) *ScanRecord {
	chainOf := make(map[int]int, len(cols.Sets))
	for ci, ch := range cols.Chains {
		for _, si := range ch.Sets {
			chainOf[si] = ci
		}
	}

	rec := &ScanRecord{
		ID:           s.idgen.New(),
		OperationID:  operationID,
		Location:     s.backend.Location(),
		ScannedAt:    s.clock.Now(),
		Chains:       len(cols.Chains),
		Orphans:      len(cols.Orphans),
		Unrecognized: len(cols.Unrecognized),
		Sets:         make([]ScanSet, len(cols.Sets)),
	}
	for i := range cols.Sets {
		set := &cols.Sets[i]
		chain, ok := chainOf[i]
		if !ok {
			chain = -1
		}
		rec.Sets[i] = ScanSet{
			Prefix:   set.Prefix,
			Type:     set.Type.String(),
			Start:    set.Start,
			End:      set.End,
			Volumes:  len(set.Volumes),
			Chain:    chain,
			Complete: set.Complete(),
			Issues:   joinIssues(set.Issues),
		}
	}
	return rec
}

func joinIssues(issues []collection.Issue) string {
	out := ""
	for i, issue := range issues {
		if i > 0 {
			out += "; "
		}
		out += issue.String()
	}
	return out
}

// describeSet names a set the way duplicity's own listings do.
func describeSet(set *collection.BackupSet) string {
	if set.Type == collection.SetFull {
		return fmt.Sprintf("%s full %s", set.Prefix, naming.FormatTime(set.End))
	}
	return fmt.Sprintf("%s inc %s to %s", set.Prefix, naming.FormatTime(set.Start), naming.FormatTime(set.End))
}
