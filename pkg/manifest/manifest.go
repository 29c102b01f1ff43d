// Package manifest computes, persists, and verifies content-addressed
// inventories of archive entries.
package manifest

import (
	"runtime"
	"sort"
	"sync"
	"time"
)

// Kind is the closed set of entry kinds captured in a manifest.
type Kind string

const (
	KindFile      Kind = "File"
	KindDirectory Kind = "Directory"
	KindSymlink   Kind = "Symlink"
)

// Entry describes one filesystem object in a manifest. Entries are keyed by
// slash-separated relative path and sorted ascending by path for
// deterministic output.
type Entry struct {
	Path   string  `json:"path"`
	Size   uint64  `json:"size"`
	SHA256 string  `json:"sha256"`
	Kind   Kind    `json:"kind"`
	Target *string `json:"target"`
	MTime  *int64  `json:"mtime"`
}

// ForDirectory builds the canonical entry for a directory: the fingerprint
// of an empty byte sequence, content-independent by construction.
func ForDirectory(path string, mtime time.Time) Entry {
	return Entry{
		Path:   path,
		SHA256: DigestBytes(nil),
		Kind:   KindDirectory,
		MTime:  unixSecs(mtime),
	}
}

// ForSymlink builds the entry for a symlink: the fingerprint covers the
// UTF-8 bytes of the target string, not whatever the link resolves to.
func ForSymlink(path, target string) Entry {
	return Entry{
		Path:   path,
		SHA256: DigestBytes([]byte(target)),
		Kind:   KindSymlink,
		Target: &target,
	}
}

// Item is the pre-fingerprint input to Collect, built while walking a tree
// or unpacking a stream.
type Item struct {
	Relative   string
	Absolute   string
	Kind       Kind
	LinkTarget string
	Size       uint64
	MTime      time.Time
}

// Collect fingerprints items with parallel workers. Each worker only reads
// its own item and writes its own result slot; the results are sorted by
// path afterwards, so output ordering never depends on scheduling.
func Collect(items []Item) ([]Entry, error) {
	entries := make([]Entry, len(items))
	errs := make([]error, len(items))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(items) {
		workers = len(items)
	}
	if workers > 1 {
		indexes := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range indexes {
					entries[i], errs[i] = collectOne(items[i])
				}
			}()
		}
		for i := range items {
			indexes <- i
		}
		close(indexes)
		wg.Wait()
	} else {
		for i := range items {
			entries[i], errs[i] = collectOne(items[i])
		}
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func collectOne(item Item) (Entry, error) {
	switch item.Kind {
	case KindDirectory:
		return ForDirectory(item.Relative, item.MTime), nil
	case KindSymlink:
		entry := ForSymlink(item.Relative, item.LinkTarget)
		entry.MTime = unixSecs(item.MTime)
		return entry, nil
	default:
		sum, err := hashFile(item.Absolute)
		if err != nil {
			return Entry{}, err
		}
		return Entry{
			Path:   item.Relative,
			Size:   item.Size,
			SHA256: sum,
			Kind:   KindFile,
			MTime:  unixSecs(item.MTime),
		}, nil
	}
}

func unixSecs(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	secs := t.Unix()
	if secs < 0 {
		return nil
	}
	return &secs
}
