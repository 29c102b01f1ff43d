// Package archive implements the entry pipeline: walking a filesystem tree
// into a validated, quota-checked entry list (create), unpacking a tar
// stream through the same policy checks (extract), and listing archive
// contents. Every path that touches the filesystem goes through the policy
// engine first.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/safetar/pkg/compress"
	"github.com/odvcencio/safetar/pkg/manifest"
	"github.com/odvcencio/safetar/pkg/policy"
)

// Create walks the inputs into an ordered entry list, fingerprints it, and
// writes a tar stream wrapped with the requested codec. Identical inputs
// produce byte-identical archives: the walk order is sorted and headers
// carry no environment-dependent metadata. Any policy rejection aborts the
// whole operation; there is no partial-success mode.
func Create(opts CreateOptions, pol policy.SecurityPolicy) ([]manifest.Entry, error) {
	base, err := resolveBase(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	excludes, err := CompileExcludes(opts.Excludes, opts.ExcludeFrom)
	if err != nil {
		return nil, err
	}
	usage := pol.Usage()

	var entries []Entry
	for _, input := range opts.Inputs {
		absInput, err := canonicalizeInput(base, input)
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(absInput)
		if err != nil {
			return nil, fmt.Errorf("stat input %s: %w", absInput, err)
		}
		// Descendants of a directory input are trimmed relative to that
		// directory, not the overall working root.
		root := base
		if info.IsDir() {
			root = absInput
		}
		w := &walker{
			policy:   pol,
			usage:    usage,
			excludes: excludes,
			root:     root,
			entries:  &entries,
		}
		if err := w.walk(absInput, info); err != nil {
			return nil, err
		}
	}

	if opts.PrintPlan && !opts.Quiet {
		for i := range entries {
			fmt.Printf("%s\t%s\n", entries[i].kindLabel(), entries[i].Relative)
		}
	}

	items := make([]manifest.Item, len(entries))
	for i := range entries {
		items[i] = entries[i].toManifestItem()
	}
	manifestEntries, err := manifest.Collect(items)
	if err != nil {
		return nil, err
	}
	if opts.PrintPlan {
		return manifestEntries, nil
	}

	if err := writeArchive(opts, entries); err != nil {
		return nil, err
	}

	if opts.ManifestOut != "" {
		if err := manifest.Write(manifestEntries, opts.ManifestOut); err != nil {
			return nil, err
		}
	}
	return manifestEntries, nil
}

type walker struct {
	policy   policy.SecurityPolicy
	usage    *policy.UsageTracker
	excludes *ExcludeSet
	root     string // allowed root for this input
	entries  *[]Entry
}

// walk visits abs depth-first in sorted order. info carries Lstat semantics
// so symlinks are seen as symlinks unless the policy follows them.
func (w *walker) walk(abs string, info os.FileInfo) error {
	rel, within := relativeTo(abs, w.root)
	if !within {
		// Pathological filesystem layout, not an attack: hard input error.
		return &UserInputError{Msg: fmt.Sprintf("input %s escapes base %s", abs, w.root)}
	}

	isSymlink := info.Mode()&os.ModeSymlink != 0
	if isSymlink && w.policy.FollowSymlinks {
		resolved, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("follow symlink %s: %w", abs, err)
		}
		info = resolved
		isSymlink = false
	}
	isDir := !isSymlink && info.IsDir()

	if rel != "" {
		if w.excludes.Match(rel, isDir) {
			// A matching directory is pruned without descending; a matching
			// non-directory is simply omitted.
			return nil
		}
		switch {
		case isSymlink:
			if err := w.recordSymlink(abs, rel, info); err != nil {
				return err
			}
		case isDir:
			if err := w.record(abs, rel, manifest.KindDirectory, 0, "", info); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := w.record(abs, rel, manifest.KindFile, uint64(info.Size()), "", info); err != nil {
				return err
			}
		default:
			// Sockets, devices, and fifos are not archivable.
			return nil
		}
	}

	if !isDir {
		return nil
	}
	children, err := os.ReadDir(abs) // sorted by name: deterministic order
	if err != nil {
		return fmt.Errorf("read dir %s: %w", abs, err)
	}
	for _, child := range children {
		childInfo, err := child.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", filepath.Join(abs, child.Name()), err)
		}
		if err := w.walk(filepath.Join(abs, child.Name()), childInfo); err != nil {
			return err
		}
	}
	return nil
}

// recordSymlink confines the link target before the entry is accepted.
// Creation-time confinement is independent of, and in addition to,
// extraction-time confinement.
func (w *walker) recordSymlink(abs, rel string, info os.FileInfo) error {
	target, err := os.Readlink(abs)
	if err != nil {
		return fmt.Errorf("read link %s: %w", abs, err)
	}
	// Relative targets resolve against the link's own parent directory.
	resolved := target
	if !filepath.IsAbs(target) {
		resolved = filepath.Join(filepath.Dir(abs), target)
	}
	if err := w.policy.EnforceLinkPolicy(resolved, w.root, policy.LinkSymlink); err != nil {
		return err
	}
	return w.record(abs, rel, manifest.KindSymlink, 0, target, info)
}

func (w *walker) record(abs, rel string, kind manifest.Kind, size uint64, linkTarget string, info os.FileInfo) error {
	validated, err := w.policy.NormalizeAndValidate(rel, w.root)
	if err != nil {
		return err
	}
	if validated.Rel == "" {
		// Archiving the root itself: silently skipped.
		return nil
	}
	if err := w.usage.Observe(validated, size); err != nil {
		return err
	}
	*w.entries = append(*w.entries, Entry{
		Absolute:   validated.Abs,
		Relative:   validated.Rel,
		Kind:       kind,
		Size:       size,
		LinkTarget: linkTarget,
		ModTime:    info.ModTime(),
		Mode:       uint32(info.Mode().Perm()),
	})
	return nil
}

func writeArchive(opts CreateOptions, entries []Entry) error {
	f, err := os.Create(opts.ArchivePath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", opts.ArchivePath, err)
	}
	cw, err := compress.WrapWriter(f, opts.Codec)
	if err != nil {
		f.Close()
		return fmt.Errorf("initialise %s compressor: %w", opts.Codec, err)
	}
	tw := tar.NewWriter(cw)

	for i := range entries {
		entry := &entries[i]
		if opts.Verbose && !opts.Quiet {
			fmt.Printf("adding %s (%s)\n", entry.Relative, entry.kindLabel())
		}
		if err := appendEntry(tw, entry); err != nil {
			f.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalise tar archive: %w", err)
	}
	if err := cw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish compressed writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive %s: %w", opts.ArchivePath, err)
	}
	return nil
}

// appendEntry writes one entry with deterministic header metadata: zero
// owner ids, no user/group names, mtime truncated to whole seconds.
func appendEntry(tw *tar.Writer, entry *Entry) error {
	hdr := &tar.Header{
		Name:    entry.Relative,
		Mode:    int64(entry.Mode),
		ModTime: entry.ModTime.Truncate(time.Second),
		Format:  tar.FormatPAX,
	}

	switch entry.Kind {
	case manifest.KindDirectory:
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
	case manifest.KindSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = entry.LinkTarget
		hdr.Mode = 0o777
	default:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = int64(entry.Size)
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("append %s %s: %w", entry.kindLabel(), entry.Relative, err)
	}
	if entry.Kind != manifest.KindFile {
		return nil
	}

	src, err := os.Open(entry.Absolute)
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Absolute, err)
	}
	defer src.Close()
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("append file %s: %w", entry.Relative, err)
	}
	return nil
}

// resolveBase canonicalizes the working directory for a create operation.
func resolveBase(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		dir = cwd
	}
	canonical, err := canonicalize(dir)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", dir, err)
	}
	return canonical, nil
}

// canonicalizeInput resolves one create input against the base directory.
// A missing input is a user error, not an I/O failure.
func canonicalizeInput(base, input string) (string, error) {
	joined := input
	if !filepath.IsAbs(input) {
		joined = filepath.Join(base, input)
	}
	canonical, err := canonicalize(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &UserInputError{Msg: fmt.Sprintf("input path does not exist: %s", joined)}
		}
		return "", fmt.Errorf("canonicalize %s: %w", joined, err)
	}
	return canonical, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// relativeTo trims root from abs, returning "" for the root itself.
func relativeTo(abs, root string) (string, bool) {
	if abs == root {
		return "", true
	}
	prefix := root + string(filepath.Separator)
	if !strings.HasPrefix(abs, prefix) {
		return "", false
	}
	return abs[len(prefix):], true
}
