package helpers

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// FileAssertions provides utilities for asserting file system state in tests.
type FileAssertions struct {
	t       *testing.T
	baseDir string
}

// NewFileAssertions creates a new file assertions helper.
func NewFileAssertions(t *testing.T, baseDir string) *FileAssertions {
	return &FileAssertions{
		t:       t,
		baseDir: baseDir,
	}
}

// AssertFileBytes validates that a file exists and holds exactly want.
func (fa *FileAssertions) AssertFileBytes(relativePath string, want []byte) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	got, err := os.ReadFile(fullPath)
	if err != nil {
		fa.t.Errorf("Failed to read file %s: %v", fullPath, err)
		return fa
	}
	if !bytes.Equal(got, want) {
		fa.t.Errorf("Content mismatch in %s\nwant: %q\ngot:  %q", relativePath, want, got)
	}
	return fa
}

// AssertPathNotExists validates that nothing exists at the path.
func (fa *FileAssertions) AssertPathNotExists(relativePath string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if _, err := os.Lstat(fullPath); err == nil {
		fa.t.Errorf("Expected path to not exist: %s", fullPath)
	}
	return fa
}

// AssertDirEntries validates that a directory holds exactly the named entries.
func (fa *FileAssertions) AssertDirEntries(relativePath string, names ...string) *FileAssertions {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		fa.t.Errorf("Failed to read directory %s: %v", fullPath, err)
		return fa
	}
	got := make(map[string]bool, len(entries))
	for _, e := range entries {
		got[e.Name()] = true
	}
	if len(got) != len(names) {
		fa.t.Errorf("Expected %d entries in %s, found %d", len(names), relativePath, len(got))
	}
	for _, n := range names {
		if !got[n] {
			fa.t.Errorf("Expected %s to contain %s", relativePath, n)
		}
	}
	return fa
}

// WriteFile creates relativePath (and its parents) with content, failing the test on error.
func (fa *FileAssertions) WriteFile(relativePath string, content []byte) string {
	fa.t.Helper()
	fullPath := filepath.Join(fa.baseDir, relativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		fa.t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, content, 0o600); err != nil {
		fa.t.Fatalf("write %s: %v", fullPath, err)
	}
	return fullPath
}
