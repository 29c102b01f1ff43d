package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"github.com/odvcencio/safetar/pkg/compress"
	"github.com/odvcencio/safetar/pkg/manifest"
	"github.com/odvcencio/safetar/pkg/policy"
)

// Extract unpacks a tar stream into the destination, validating and
// accounting every entry before it is materialized. A policy violation
// aborts extraction immediately; entries already materialized are left in
// place (no rollback). A manifest of the materialized entries is always
// produced; when a verification manifest was supplied it is checked after
// the full extraction loop completes, so a mismatch is reported post-hoc.
func Extract(opts ExtractOptions, pol policy.SecurityPolicy) ([]manifest.Entry, error) {
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

	dest, err := resolveDestination(opts.Destination)
	if err != nil {
		return nil, err
	}
	usage := pol.Usage()
	var items []manifest.Item

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}

		kind := classifyHeader(hdr)
		validated, err := pol.NormalizeAndValidate(hdr.Name, dest)
		if err != nil {
			return nil, err
		}
		if err := usage.Observe(validated, uint64(hdr.Size)); err != nil {
			return nil, err
		}
		if opts.Verbose && !opts.Quiet {
			fmt.Printf("extracting %s (%s)\n", validated.Rel, kind)
		}

		item := manifest.Item{
			Relative: validated.Rel,
			Absolute: validated.Abs,
			Kind:     kind,
			MTime:    hdr.ModTime,
		}
		switch kind {
		case manifest.KindDirectory:
			if err := os.MkdirAll(validated.Abs, headerPerm(hdr, 0o755)); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", validated.Abs, err)
			}
		case manifest.KindSymlink:
			if err := extractSymlink(pol, dest, validated, hdr); err != nil {
				return nil, err
			}
			item.LinkTarget = hdr.Linkname
		default:
			if hdr.Typeflag == tar.TypeLink {
				if err := extractHardlink(pol, dest, validated, hdr); err != nil {
					return nil, err
				}
			} else {
				if err := extractFile(validated, hdr, tr); err != nil {
					return nil, err
				}
			}
			item.Size = uint64(hdr.Size)
		}
		restoreOwner(validated.Abs, hdr, &opts)
		items = append(items, item)
	}

	actual, err := manifest.Collect(items)
	if err != nil {
		return nil, err
	}
	if opts.ManifestPath != "" {
		expected, err := manifest.Read(opts.ManifestPath)
		if err != nil {
			return nil, err
		}
		if err := manifest.Verify(expected, actual, opts.ManifestRelaxed); err != nil {
			return nil, err
		}
	}
	return actual, nil
}

func extractFile(validated policy.ValidatedPath, hdr *tar.Header, tr *tar.Reader) error {
	if err := ensureParent(validated); err != nil {
		return err
	}
	out, err := os.OpenFile(validated.Abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, headerPerm(hdr, 0o644))
	if err != nil {
		return fmt.Errorf("create %s: %w", validated.Abs, err)
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", validated.Rel, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", validated.Abs, err)
	}
	if !hdr.ModTime.IsZero() {
		// Best effort; a read-only mtime is not worth failing the extract.
		os.Chtimes(validated.Abs, hdr.ModTime, hdr.ModTime)
	}
	return nil
}

// extractSymlink confines the link target before the link is written.
// Absolute targets are checked directly; relative targets resolve against
// the link's own parent directory.
func extractSymlink(pol policy.SecurityPolicy, dest string, validated policy.ValidatedPath, hdr *tar.Header) error {
	if err := ensureParent(validated); err != nil {
		return err
	}
	target := hdr.Linkname
	if !utf8.ValidString(target) {
		return &policy.Violation{Code: policy.InvalidUTF8Path, Path: validated.Rel}
	}
	resolved := target
	if !filepath.IsAbs(target) {
		resolved = filepath.Join(filepath.Dir(validated.Abs), target)
	}
	if err := pol.EnforceLinkPolicy(resolved, dest, policy.LinkSymlink); err != nil {
		return err
	}
	// Replace an existing entry at the validated path, mirroring tar.
	if _, err := os.Lstat(validated.Abs); err == nil {
		if err := os.Remove(validated.Abs); err != nil {
			return fmt.Errorf("replace %s: %w", validated.Abs, err)
		}
	}
	if err := os.Symlink(target, validated.Abs); err != nil {
		return fmt.Errorf("write symlink %s: %w", validated.Rel, err)
	}
	return nil
}

// extractHardlink materializes a tar hardlink entry. The target name is
// archive-root-relative, so it is validated against the destination and
// confined under the hardlink toggle before linking.
func extractHardlink(pol policy.SecurityPolicy, dest string, validated policy.ValidatedPath, hdr *tar.Header) error {
	if err := ensureParent(validated); err != nil {
		return err
	}
	target := hdr.Linkname
	if !utf8.ValidString(target) {
		return &policy.Violation{Code: policy.InvalidUTF8Path, Path: validated.Rel}
	}
	if err := pol.EnforceLinkPolicy(target, dest, policy.LinkHardlink); err != nil {
		return err
	}
	targetAbs := target
	if !filepath.IsAbs(target) {
		targetAbs = filepath.Join(dest, target)
	}
	if _, err := os.Lstat(validated.Abs); err == nil {
		if err := os.Remove(validated.Abs); err != nil {
			return fmt.Errorf("replace %s: %w", validated.Abs, err)
		}
	}
	if err := os.Link(targetAbs, validated.Abs); err != nil {
		return fmt.Errorf("write hardlink %s: %w", validated.Rel, err)
	}
	return nil
}

// restoreOwner applies archive ownership when running as root. It is
// governed entirely by the NumericOwner/NoSameOwner flags and never
// influences path safety; failures are deliberately best effort, matching
// conventional tar behavior for unprivileged extraction.
func restoreOwner(path string, hdr *tar.Header, opts *ExtractOptions) {
	if opts.NoSameOwner || os.Geteuid() != 0 {
		return
	}
	uid, gid := hdr.Uid, hdr.Gid
	if !opts.NumericOwner {
		if hdr.Uname != "" {
			if u, err := user.Lookup(hdr.Uname); err == nil {
				if n, err := strconv.Atoi(u.Uid); err == nil {
					uid = n
				}
			}
		}
		if hdr.Gname != "" {
			if g, err := user.LookupGroup(hdr.Gname); err == nil {
				if n, err := strconv.Atoi(g.Gid); err == nil {
					gid = n
				}
			}
		}
	}
	os.Lchown(path, uid, gid)
}

func ensureParent(validated policy.ValidatedPath) error {
	parent := filepath.Dir(validated.Abs)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create parent %s: %w", parent, err)
	}
	return nil
}

func headerPerm(hdr *tar.Header, fallback os.FileMode) os.FileMode {
	perm := os.FileMode(hdr.Mode).Perm()
	if perm == 0 {
		return fallback
	}
	return perm
}

// resolveDestination prepares and canonicalizes the extraction root.
func resolveDestination(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare destination %s: %w", dir, err)
	}
	canonical, err := canonicalize(dir)
	if err != nil {
		return "", fmt.Errorf("canonicalize destination %s: %w", dir, err)
	}
	return canonical, nil
}
