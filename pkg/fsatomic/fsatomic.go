// Package fsatomic provides the write-then-rename file discipline the
// output materializer relies on so that concurrent readers never observe
// a partially written file, plus a small existence check.
package fsatomic

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes data to path by first writing to a temp file in the
// same directory, then renaming it into place. Parent directories are
// created on demand. Rename is atomic on the same filesystem, so readers
// never see a partial file.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatomic: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".fledge-tmp-*")
	if err != nil {
		return fmt.Errorf("fsatomic: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsatomic: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsatomic: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsatomic: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsatomic: rename into place: %w", err)
	}
	return nil
}

// Exists reports whether path exists, treating any stat error other than
// "not exist" as false for the caller's purposes (callers that need the
// distinction should call os.Stat directly).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
