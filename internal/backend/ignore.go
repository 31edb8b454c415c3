package backend

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is read from a filesystem backend's root, if present.
const IgnoreFileName = ".dvignore"

// IgnoreMatcher filters backend entry names by glob pattern.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher compiles raw patterns. Blank lines and lines starting
// with '#' are skipped, and the ignore file itself is always ignored.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	patterns := []string{IgnoreFileName}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, raw)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether name should be left out of listings.
func (m *IgnoreMatcher) Match(name string) bool {
	for _, p := range m.patterns {
		matched, err := path.Match(p, name)
		if err != nil {
			// bad pattern
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the lines of an ignore file, or nil if the file
// does not exist.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
