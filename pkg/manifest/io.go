package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Write persists entries as a pretty-printed JSON array in sorted order.
// The write is atomic: data lands in a temp file and is renamed into place.
// Write-then-Read reproduces the entry slice byte-for-byte.
func Write(entries []Entry, path string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("write manifest: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("write manifest: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: rename: %w", err)
	}
	return nil
}

// Read loads a manifest JSON array from disk.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("read manifest %s: unmarshal: %w", path, err)
	}
	return entries, nil
}
