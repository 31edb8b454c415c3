package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dupview/internal/config"
	"dupview/internal/dv"
	"dupview/internal/secrets"
	"dupview/internal/testutil"
)

var (
	t0 = time.Date(2025, 1, 5, 3, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

// newTestConfig writes a two-snapshot archive into a directory and returns
// a config reading it through the filesystem backend.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	a := testutil.NewArchive(t)
	a.Full(t0, 1, testutil.NewSigtarBuilder(t).
		Dir("snapshot", "", t0).
		Signature("notes.txt", 10, t0).
		Signature("todo.txt", 10, t0).
		Bytes())
	a.Inc(t0, t1, 1, testutil.NewSigtarBuilder(t).
		Signature("notes.txt", 9000, t1).
		Deleted("todo.txt").
		Bytes())

	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	ctx := context.Background()
	names, _ := a.Backend.List(ctx)
	for _, name := range names {
		rc, err := a.Backend.Open(ctx, name)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if err := os.WriteFile(filepath.Join(archiveDir, name), data, 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	cfg := config.NewConfig("test-instance", filepath.Join(dir, "home"))
	cfg.Backends = []config.BackendConfig{{Type: "filesystem", Name: "local", FSRoot: archiveDir}}
	cfg.Decode = config.DecodeConfig{Type: "test"}
	cfg.Catalog = config.CatalogConfig{Type: "sqlite", DataDir: filepath.Join(dir, "catalog")}
	cfg.Log.Level = "error"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *DVApp {
	t.Helper()
	a, err := NewDVApp(context.Background(), cfg, "", operation, "")
	if err != nil {
		t.Fatalf("NewDVApp() error = %v", err)
	}
	return a
}

func TestDVApp_Queries(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "List")
	defer a.Close()
	ctx := context.Background()

	infos, chain, err := a.Snapshots(ctx, -1)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if chain != 0 || len(infos) != 2 {
		t.Fatalf("Snapshots() = %d infos on chain %d", len(infos), chain)
	}

	entries, at, err := a.List(ctx, -1, -1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !at.Equal(t1) {
		t.Errorf("List() time = %v, want %v", at, t1)
	}
	if len(entries) != 2 || string(entries[1].Path) != "notes.txt" {
		t.Errorf("List() entries = %d", len(entries))
	}

	entries, _, err = a.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List(0, 0) error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("List(0, 0) = %d entries, want 3", len(entries))
	}

	m, err := a.Manifest(ctx, -1, 0)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if m.Hostname != "testhost" {
		t.Errorf("Hostname = %q", m.Hostname)
	}

	versions, err := a.FileHistory(ctx, -1, "/todo.txt")
	if err != nil {
		t.Fatalf("FileHistory() error = %v", err)
	}
	if len(versions) != 2 || !versions[0].Deleted {
		t.Errorf("FileHistory() = %+v", versions)
	}

	if _, _, err := a.List(ctx, 0, 5); !errors.Is(err, dv.ErrNoSuchSnapshot) {
		t.Errorf("List(0, 5) error = %v, want ErrNoSuchSnapshot", err)
	}
	if _, _, err := a.Snapshots(ctx, 3); !errors.Is(err, dv.ErrNoSuchChain) {
		t.Errorf("Snapshots(3) error = %v, want ErrNoSuchChain", err)
	}
}

func TestDVApp_RecordsOperations(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	a := newTestApp(t, cfg, "Status")
	if _, err := a.Scan(ctx); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = newTestApp(t, cfg, "Log")
	defer a.Close()
	ops, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Operation != "Status" || ops[0].Status != "success" || ops[0].FinishedAt == nil {
		t.Errorf("History() = %+v", ops)
	}

	scans, err := a.ScanHistory(10)
	if err != nil {
		t.Fatalf("ScanHistory() error = %v", err)
	}
	if len(scans) != 1 || scans[0].Chains != 1 || scans[0].OperationID != ops[0].ID {
		t.Fatalf("ScanHistory() = %+v", scans)
	}
	detail, err := a.ScanDetail(scans[0].ID)
	if err != nil {
		t.Fatalf("ScanDetail() error = %v", err)
	}
	if len(detail.Sets) != 2 {
		t.Errorf("ScanDetail() sets = %d, want 2", len(detail.Sets))
	}
}

func TestNewDVApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "no backends", mutate: func(c *config.Config) { c.Backends = nil }},
		{name: "bad decode type", mutate: func(c *config.Config) { c.Decode.Type = "zip" }},
		{name: "bad log level", mutate: func(c *config.Config) { c.Log.Level = "chatty" }},
		{name: "bad cache ttl", mutate: func(c *config.Config) { c.Scan.ManifestCacheTTL = "soon" }},
		{name: "bad catalog", mutate: func(c *config.Config) { c.Catalog.Type = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tt.mutate(cfg)
			a, err := NewDVApp(context.Background(), cfg, "", "Status", "")
			if err == nil {
				a.Close()
				t.Error("NewDVApp() error = nil, want error")
			}
		})
	}
}

func TestStorePassphrase(t *testing.T) {
	cfg := config.NewConfig("id", t.TempDir())

	if err := StorePassphrase(cfg, ""); !errors.Is(err, secrets.ErrNoPassphrase) {
		t.Errorf("StorePassphrase(\"\") error = %v, want ErrNoPassphrase", err)
	}
	if err := StorePassphrase(cfg, "open sesame"); err != nil {
		t.Fatalf("StorePassphrase() error = %v", err)
	}

	cfg.Passphrase.Type = "age"
	src, err := secrets.NewSourceFromConfig(cfg.Passphrase)
	if err != nil {
		t.Fatalf("NewSourceFromConfig() error = %v", err)
	}
	got, err := src.Passphrase()
	if err != nil || got != "open sesame" {
		t.Errorf("Passphrase() = %q, %v", got, err)
	}
}
