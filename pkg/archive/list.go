package archive

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/odvcencio/safetar/pkg/compress"
	"github.com/odvcencio/safetar/pkg/manifest"
	"github.com/odvcencio/safetar/pkg/policy"
)

// List reads an archive without touching the destination filesystem and
// returns manifest entries for its contents, fingerprinting file data
// straight from the stream.
func List(opts ListOptions) ([]manifest.Entry, error) {
	f, err := os.Open(opts.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", opts.ArchivePath, err)
	}
	defer f.Close()
	cr, err := compress.WrapReader(f)
	if err != nil {
		return nil, fmt.Errorf("detect archive compression: %w", err)
	}
	defer cr.Close()
	tr := tar.NewReader(cr)

	var entries []manifest.Entry
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}
		if !utf8.ValidString(hdr.Name) {
			return nil, &policy.Violation{Code: policy.InvalidUTF8Path, Path: hdr.Name}
		}

		kind := classifyHeader(hdr)
		path := strings.TrimSuffix(hdr.Name, "/")
		if opts.Verbose && !opts.Quiet {
			if pax := paxExtensions(hdr); len(pax) > 0 {
				fmt.Printf("%s\t%d\t%s\t%v\n", kind, hdr.Size, path, pax)
			} else {
				fmt.Printf("%s\t%d\t%s\n", kind, hdr.Size, path)
			}
		} else if !opts.Quiet && !opts.JSON {
			fmt.Println(path)
		}

		entry, err := listEntry(kind, path, hdr, tr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if opts.JSON && !opts.Quiet {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return nil, fmt.Errorf("render manifest: %w", err)
		}
	}
	return entries, nil
}

func listEntry(kind manifest.Kind, path string, hdr *tar.Header, tr *tar.Reader) (manifest.Entry, error) {
	switch kind {
	case manifest.KindDirectory:
		return manifest.ForDirectory(path, hdr.ModTime), nil
	case manifest.KindSymlink:
		if !utf8.ValidString(hdr.Linkname) {
			return manifest.Entry{}, &policy.Violation{Code: policy.InvalidUTF8Path, Path: path}
		}
		return manifest.ForSymlink(path, hdr.Linkname), nil
	default:
		sum, err := manifest.DigestReader(tr)
		if err != nil {
			return manifest.Entry{}, fmt.Errorf("hash entry %s: %w", path, err)
		}
		entry := manifest.Entry{
			Path:   path,
			Size:   uint64(hdr.Size),
			SHA256: sum,
			Kind:   manifest.KindFile,
		}
		if !hdr.ModTime.IsZero() {
			secs := hdr.ModTime.Unix()
			if secs >= 0 {
				entry.MTime = &secs
			}
		}
		return entry, nil
	}
}

// paxExtensions returns the entry's PAX extended records in a stable order.
// Go's archive/tar surfaces them directly; older archives without extended
// headers yield nothing.
func paxExtensions(hdr *tar.Header) []string {
	if len(hdr.PAXRecords) == 0 {
		return nil
	}
	records := make([]string, 0, len(hdr.PAXRecords))
	for k, v := range hdr.PAXRecords {
		records = append(records, k+"="+v)
	}
	sort.Strings(records)
	return records
}
