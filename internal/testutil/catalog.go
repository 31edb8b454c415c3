package testutil

import (
	"testing"

	"dupview/internal/catalog"
)

// NewTestCatalog opens an in-memory catalog on clock, closed when the test
// completes.
func NewTestCatalog(t testing.TB, clock *StubClock) *catalog.SQLiteCatalog {
	t.Helper()
	c, err := catalog.NewSQLiteCatalog(":memory:", clock)
	if err != nil {
		t.Fatalf("NewSQLiteCatalog() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
