package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dupview/internal/backend"
	"dupview/internal/catalog"
	"dupview/internal/collection"
	"dupview/internal/config"
	"dupview/internal/decode"
	"dupview/internal/dv"
	"dupview/internal/manifest"
	"dupview/internal/secrets"
	"dupview/internal/snapshot"
)

// DVApp sits between the CLI and DVService. It builds every dependency from
// config, resolves the CLI's chain and snapshot arguments, and records the
// operation in the catalog.
type DVApp struct {
	cfg     *config.Config
	backend dv.Backend
	catalog *catalog.SQLiteCatalog
	service *dv.DVService
	op      *Operation
	logFile *os.File

	cols *collection.Collections
}

// NewDVApp creates a DVApp for the backend called backendName (the first
// configured backend when empty). operation names the CLI command for the
// catalog. The caller must call Close.
func NewDVApp(ctx context.Context, cfg *config.Config, backendName, operation, parameters string) (*DVApp, error) {
	bcfg, err := cfg.Backend(backendName)
	if err != nil {
		return nil, err
	}
	b, err := backend.NewBackendFromConfig(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	source, err := secrets.NewSourceFromConfig(cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating passphrase source: %w", err)
	}
	dec, err := decode.NewDecoderFromConfig(cfg.Decode, source)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	ttl, err := cfg.Scan.CacheTTL()
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.NewCatalogFromConfig(cfg.Catalog, cfg.InstanceID, dv.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := dv.NewDVService(b, dec, cat, &slogAdapter{l: logger}, dv.RealClock{}, dv.UUIDGenerator{}, dv.Options{
		Parallelism:       cfg.Scan.Parallelism,
		VerifyManifests:   cfg.Scan.VerifyManifests,
		ManifestCacheSize: cfg.Scan.ManifestCacheSize,
		ManifestCacheTTL:  ttl,
	})

	return &DVApp{
		cfg:     cfg,
		backend: b,
		catalog: cat,
		service: svc,
		op:      NewOperation(operation, parameters),
		logFile: logFile,
	}, nil
}

// persistOperation gives the operation a catalog record. Only commands that
// write to the catalog call it.
func (a *DVApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	rec, err := a.catalog.CreateOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = rec.ID
	return nil
}

// Location describes the backend being inspected.
func (a *DVApp) Location() string {
	return a.backend.Location()
}

// Scan lists the backend and rebuilds its collections. The result is kept
// for the rest of the operation.
func (a *DVApp) Scan(ctx context.Context) (*collection.Collections, error) {
	if a.cols != nil {
		return a.cols, nil
	}
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	cols, err := a.service.Scan(ctx, a.op.ID)
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	a.cols = cols
	return cols, nil
}

// resolve maps the CLI's chain and snapshot arguments to indexes. A
// negative chain selects the most recent chain; a negative index selects
// the chain's latest snapshot.
func (a *DVApp) resolve(ctx context.Context, chain, index int) (*collection.Collections, int, int, error) {
	cols, err := a.Scan(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	if chain < 0 {
		p, ok := cols.Primary()
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: no backup chains at %s", dv.ErrNoSuchChain, a.Location())
		}
		chain = p
	}
	if chain >= len(cols.Chains) {
		return nil, 0, 0, fmt.Errorf("%w: %d (have %d)", dv.ErrNoSuchChain, chain, len(cols.Chains))
	}
	if index < 0 {
		index = cols.Chains[chain].Len() - 1
	}
	if index >= cols.Chains[chain].Len() {
		return nil, 0, 0, fmt.Errorf("%w: chain %d has %d snapshots", dv.ErrNoSuchSnapshot, chain, cols.Chains[chain].Len())
	}
	return cols, chain, index, nil
}

// Snapshots lists the snapshots of a chain and returns the resolved chain.
func (a *DVApp) Snapshots(ctx context.Context, chain int) ([]dv.SnapshotInfo, int, error) {
	cols, chain, _, err := a.resolve(ctx, chain, -1)
	if err != nil {
		return nil, 0, err
	}
	infos, err := a.service.Snapshots(cols, chain)
	return infos, chain, a.track(err)
}

// List returns the entries of one snapshot and the snapshot's time.
func (a *DVApp) List(ctx context.Context, chain, index int) ([]snapshot.Entry, time.Time, error) {
	cols, chain, index, err := a.resolve(ctx, chain, index)
	if err != nil {
		return nil, time.Time{}, err
	}
	entries, err := a.service.Entries(ctx, cols, chain, index)
	if err != nil {
		return nil, time.Time{}, a.track(err)
	}
	return entries, cols.ChainSet(chain, index).Time(), nil
}

// Manifest returns the manifest of one snapshot.
func (a *DVApp) Manifest(ctx context.Context, chain, index int) (*manifest.Manifest, error) {
	cols, chain, index, err := a.resolve(ctx, chain, index)
	if err != nil {
		return nil, err
	}
	m, err := a.service.Manifest(ctx, cols, cols.Chains[chain].Sets[index])
	return m, a.track(err)
}

// FileHistory returns the versions of path across a chain, newest first.
// path is relative to the backup root; leading and trailing slashes are
// ignored.
func (a *DVApp) FileHistory(ctx context.Context, chain int, path string) ([]*dv.FileVersion, error) {
	cols, chain, _, err := a.resolve(ctx, chain, -1)
	if err != nil {
		return nil, err
	}
	versions, err := a.service.FileHistory(ctx, cols, chain, []byte(strings.Trim(path, "/")))
	return versions, a.track(err)
}

// History returns the most recent operations.
func (a *DVApp) History(limit int) ([]*dv.Operation, error) {
	return a.service.History(limit)
}

// ScanHistory returns the most recent scans of this backend.
func (a *DVApp) ScanHistory(limit int) ([]*dv.ScanRecord, error) {
	return a.service.ScanHistory(limit)
}

// ScanDetail returns one recorded scan with its sets.
func (a *DVApp) ScanDetail(id string) (*dv.ScanRecord, error) {
	return a.service.ScanDetail(id)
}

// track marks the operation failed when err is an archive problem rather
// than a bad argument.
func (a *DVApp) track(err error) error {
	if err != nil && !errors.Is(err, dv.ErrNoSuchPath) && !errors.Is(err, dv.ErrNoSuchSnapshot) {
		a.op.Fail()
	}
	return err
}

// Close finishes the operation record, if any, and releases resources.
func (a *DVApp) Close() error {
	var firstErr error
	if a.op.Persisted() {
		if err := a.catalog.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.catalog.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing catalog: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// StorePassphrase saves passphrase in the age keyring named by cfg, so
// later commands can use passphrase type "age".
func StorePassphrase(cfg *config.Config, passphrase string) error {
	p := cfg.Passphrase
	if p.IdentityPath == "" || p.SecretPath == "" {
		return fmt.Errorf("passphrase identity_path and secret_path must be configured")
	}
	if passphrase == "" {
		return secrets.ErrNoPassphrase
	}
	return secrets.NewAgeKeyring(p.IdentityPath, p.SecretPath).Store(passphrase)
}
