package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"dupview/internal/config"
	"dupview/internal/dv"
)

// NewCatalogFromConfig opens the catalog described by cfg. instanceID
// names the database file so several installations can share a data dir.
func NewCatalogFromConfig(cfg config.CatalogConfig, instanceID string, clock dv.Clock) (*SQLiteCatalog, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite catalog")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
		return NewSQLiteCatalog(filepath.Join(cfg.DataDir, instanceID+".db"), clock)
	case "memory":
		return NewSQLiteCatalog(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}
}
