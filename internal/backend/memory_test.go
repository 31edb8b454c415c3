package backend

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
)

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend("test")
	m.Put("b", []byte("bbb"))
	m.Put("a", []byte("aaa"))

	names, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("List() = %v", names)
	}

	rc, err := m.Open(ctx, "a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "aaa" {
		t.Errorf("content = %q, want %q", data, "aaa")
	}

	m.Remove("a")
	if _, err := m.Open(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() after Remove error = %v, want ErrNotFound", err)
	}
	if m.Location() != "memory://test" {
		t.Errorf("Location() = %q", m.Location())
	}
}

func TestMemoryBackend_Concurrent(t *testing.T) {
	m := NewMemoryBackend("test")
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := string(rune('a' + i))
			m.Put(name, []byte(name))
			if _, err := m.Open(context.Background(), name); err != nil {
				t.Errorf("Open(%q) error = %v", name, err)
			}
			m.List(context.Background())
		}()
	}
	wg.Wait()
}
