package backend

import (
	"context"
	"fmt"

	"dupview/internal/config"
	"dupview/internal/dv"
)

// NewBackendFromConfig creates the Backend described by cfg.
func NewBackendFromConfig(ctx context.Context, cfg config.BackendConfig) (dv.Backend, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBackend(cfg.Name), nil
	case "s3":
		return NewS3BackendFromConfig(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem backend requires fs_root to be set")
		}
		return NewFileSystemBackend(cfg.FSRoot, cfg.Ignore)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
