package dv

import (
	"context"
	"io"
)

// Backend is a read-only view of a duplicity target location.
// The listing may be in any order and may be incomplete.
type Backend interface {
	// List returns the names of all entries at the location.
	List(ctx context.Context) ([]string, error)

	// Open streams the raw, still compressed or encrypted, bytes of name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Location describes the backend for logs and the catalog,
	// e.g. "file:///srv/backups" or "s3://bucket/prefix".
	Location() string
}

// Decoder turns the raw bytes of an archive file into plaintext.
type Decoder interface {
	// Decode undoes the compression and encryption flagged in the file
	// name. Failures wrap decode.ErrDecode.
	Decode(r io.Reader, compressed, encrypted bool) (io.ReadCloser, error)
}
