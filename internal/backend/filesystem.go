package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dupview/internal/dv"
)

// ErrNotFound is returned when a named entry does not exist.
var ErrNotFound = errors.New("entry not found")

// FileSystemBackend reads a duplicity target directory on a local or
// mounted filesystem. Only regular files directly under the root are
// listed; duplicity never writes subdirectories.
type FileSystemBackend struct {
	root   string
	ignore *IgnoreMatcher
}

// NewFileSystemBackend opens root. Patterns from the config are combined
// with those of the root's ignore file.
func NewFileSystemBackend(root string, ignore []string) (*FileSystemBackend, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening backend root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backend root is not a directory: %s", root)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	return &FileSystemBackend{
		root:   root,
		ignore: NewIgnoreMatcher(append(append([]string{}, ignore...), filePatterns...)),
	}, nil
}

func (b *FileSystemBackend) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("reading backend root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || b.ignore.Match(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *FileSystemBackend) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	f, err := os.Open(filepath.Join(b.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

func (b *FileSystemBackend) Location() string {
	return "file://" + filepath.ToSlash(b.root)
}

var _ dv.Backend = (*FileSystemBackend)(nil)
