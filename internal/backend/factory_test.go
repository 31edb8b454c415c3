package backend

import (
	"context"
	"testing"

	"dupview/internal/config"
)

func TestNewBackendFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BackendConfig
		wantErr bool
	}{
		{
			name: "memory backend",
			cfg:  config.BackendConfig{Type: "memory", Name: "test-memory"},
		},
		{
			name: "filesystem backend",
			cfg:  config.BackendConfig{Type: "filesystem", Name: "test-fs", FSRoot: t.TempDir()},
		},
		{
			name:    "filesystem backend without root",
			cfg:     config.BackendConfig{Type: "filesystem", Name: "test-fs"},
			wantErr: true,
		},
		{
			name:    "s3 backend without bucket",
			cfg:     config.BackendConfig{Type: "s3", Name: "test-s3"},
			wantErr: true,
		},
		{
			name:    "unknown backend type",
			cfg:     config.BackendConfig{Type: "ftp", Name: "test-unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackendFromConfig(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBackendFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && b == nil {
				t.Error("NewBackendFromConfig() returned nil backend")
			}
		})
	}
}
