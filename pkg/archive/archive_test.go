package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/safetar/pkg/compress"
	"github.com/odvcencio/safetar/pkg/manifest"
	"github.com/odvcencio/safetar/pkg/policy"
)

// helper: buildTree materializes files under a fresh temp dir. Keys are
// slash-separated relative paths; a trailing slash makes a directory.
func buildTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				t.Fatalf("MkdirAll %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func manifestPaths(entries []manifest.Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

func hasPath(entries []manifest.Entry, path string) bool {
	for _, e := range entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Scenario: excluded globs are omitted from the archive and its manifest.
func TestCreate_ExcludeGlobs(t *testing.T) {
	src := buildTree(t, map[string]string{
		"nested/keep.txt": "keep me",
		"nested/skip.log": "drop me",
	})
	archivePath := filepath.Join(t.TempDir(), "a.tar")

	entries, err := Create(CreateOptions{
		ArchivePath: archivePath,
		Inputs:      []string{src},
		Excludes:    []string{"*.log"},
		Quiet:       true,
	}, policy.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !hasPath(entries, "nested/keep.txt") {
		t.Errorf("manifest missing nested/keep.txt: %v", manifestPaths(entries))
	}
	if hasPath(entries, "nested/skip.log") {
		t.Errorf("manifest contains excluded nested/skip.log: %v", manifestPaths(entries))
	}

	dest := t.TempDir()
	if _, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: dest, Quiet: true}, policy.New()); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "nested", "keep.txt"))
	if err != nil {
		t.Fatalf("read extracted keep.txt: %v", err)
	}
	if string(data) != "keep me" {
		t.Errorf("keep.txt content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dest, "nested", "skip.log")); !os.IsNotExist(err) {
		t.Error("excluded skip.log was extracted")
	}
}

// Scenario: create-then-extract reproduces byte content for every codec.
func TestRoundTrip_AllCodecs(t *testing.T) {
	src := buildTree(t, map[string]string{
		"a.txt":       "alpha",
		"sub/b.bin":   "binary\x00data",
		"sub/deep/c":  "gamma",
		"empty/":      "",
		"sub/d/e/f.t": "deep file",
	})
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	for _, codec := range []compress.Codec{compress.None, compress.Gzip, compress.Xz, compress.Zstd} {
		archivePath := filepath.Join(t.TempDir(), "a.tar."+codec.String())
		created, err := Create(CreateOptions{
			ArchivePath: archivePath,
			Inputs:      []string{src},
			Codec:       codec,
			Quiet:       true,
		}, policy.New())
		if err != nil {
			t.Fatalf("%v: Create: %v", codec, err)
		}

		dest := t.TempDir()
		extracted, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: dest, Quiet: true}, policy.New())
		if err != nil {
			t.Fatalf("%v: Extract: %v", codec, err)
		}

		for _, name := range []string{"a.txt", "sub/b.bin", "sub/deep/c", "sub/d/e/f.t"} {
			want, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(name)))
			if err != nil {
				t.Fatalf("read source %s: %v", name, err)
			}
			got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
			if err != nil {
				t.Fatalf("%v: read extracted %s: %v", codec, name, err)
			}
			if !bytes.Equal(want, got) {
				t.Errorf("%v: %s content differs", codec, name)
			}
		}
		target, err := os.Readlink(filepath.Join(dest, "link"))
		if err != nil {
			t.Fatalf("%v: readlink: %v", codec, err)
		}
		if target != "a.txt" {
			t.Errorf("%v: link target = %q, want a.txt", codec, target)
		}

		// Creation-side and extraction-side fingerprints agree.
		if err := manifest.Verify(created, extracted, false); err != nil {
			t.Errorf("%v: created/extracted manifests diverge: %v", codec, err)
		}
	}
}

// Scenario: a symlink escaping the root is rejected at creation time.
func TestCreate_SymlinkEscapeRejected(t *testing.T) {
	src := buildTree(t, map[string]string{"ok.txt": "fine"})
	if err := os.Symlink("../../etc/passwd", filepath.Join(src, "evil")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	archivePath := filepath.Join(t.TempDir(), "a.tar")

	_, err := Create(CreateOptions{
		ArchivePath: archivePath,
		Inputs:      []string{src},
		Quiet:       true,
	}, policy.New())
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.LinkOutsideRoot {
		t.Fatalf("Create = %v, want LinkOutsideRoot violation", err)
	}
	// The whole create aborts: no archive is written.
	if _, statErr := os.Stat(archivePath); !os.IsNotExist(statErr) {
		t.Error("archive file exists despite aborted create")
	}
}

func TestCreate_SymlinkInsideRootAccepted(t *testing.T) {
	src := buildTree(t, map[string]string{"sub/file.txt": "x"})
	if err := os.Symlink("../sub/file.txt", filepath.Join(src, "sub", "up")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	// Resolves to <src>/sub/file.txt via the link's parent: confined.
	_, err := Create(CreateOptions{
		ArchivePath: filepath.Join(t.TempDir(), "a.tar"),
		Inputs:      []string{src},
		Quiet:       true,
	}, policy.New())
	if err != nil {
		t.Fatalf("Create rejected an in-root relative symlink: %v", err)
	}
}

func TestCreate_QuotaAbortsWholeOperation(t *testing.T) {
	src := buildTree(t, map[string]string{"a": "1", "b": "2"})
	pol := policy.New()
	pol.Limits.MaxFiles = 1

	_, err := Create(CreateOptions{
		ArchivePath: filepath.Join(t.TempDir(), "a.tar"),
		Inputs:      []string{src},
		Quiet:       true,
	}, pol)
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.FileCountExceeded {
		t.Fatalf("Create = %v, want FileCountExceeded", err)
	}
}

func TestCreate_MissingInputIsUserError(t *testing.T) {
	_, err := Create(CreateOptions{
		ArchivePath: filepath.Join(t.TempDir(), "a.tar"),
		Inputs:      []string{filepath.Join(t.TempDir(), "nope")},
		Quiet:       true,
	}, policy.New())
	var uerr *UserInputError
	if !errors.As(err, &uerr) {
		t.Fatalf("Create = %v, want *UserInputError", err)
	}
}

func TestCreate_Deterministic(t *testing.T) {
	src := buildTree(t, map[string]string{
		"b.txt":     "two",
		"a.txt":     "one",
		"sub/c.txt": "three",
	})
	dir := t.TempDir()
	first := filepath.Join(dir, "1.tar")
	second := filepath.Join(dir, "2.tar")

	for _, p := range []string{first, second} {
		if _, err := Create(CreateOptions{ArchivePath: p, Inputs: []string{src}, Quiet: true}, policy.New()); err != nil {
			t.Fatalf("Create %s: %v", p, err)
		}
	}
	b1, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	b2, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Error("identical inputs produced different archive bytes")
	}
}

func TestCreate_PrintPlanWritesNothing(t *testing.T) {
	src := buildTree(t, map[string]string{"a": "1"})
	archivePath := filepath.Join(t.TempDir(), "a.tar")
	entries, err := Create(CreateOptions{
		ArchivePath: archivePath,
		Inputs:      []string{src},
		PrintPlan:   true,
		Quiet:       true,
	}, policy.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("plan entries = %d, want 1", len(entries))
	}
	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Error("print-plan mode wrote an archive")
	}
}

// helper: writeRawTar builds an uncompressed tar stream from headers and
// bodies, bypassing the create pipeline so hostile entries can be crafted.
func writeRawTar(t *testing.T, path string, write func(tw *tar.Writer)) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create tar: %v", err)
	}
	tw := tar.NewWriter(f)
	write(tw)
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close tar file: %v", err)
	}
}

func TestExtract_RejectsTraversalEntry(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar")
	writeRawTar(t, archivePath, func(tw *tar.Writer) {
		body := []byte("pwned")
		if err := tw.WriteHeader(&tar.Header{
			Name:     "../evil.txt",
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
			Format:   tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		tw.Write(body)
	})

	dest := t.TempDir()
	_, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: dest, Quiet: true}, policy.New())
	var v *policy.Violation
	if !errors.As(err, &v) {
		t.Fatalf("Extract = %v, want policy violation", err)
	}
	if v.Code != policy.ParentTraversal && v.Code != policy.RootEscape {
		t.Errorf("code = %v, want ParentTraversal or RootEscape", v.Code)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.txt")); !os.IsNotExist(statErr) {
		t.Error("traversal entry escaped the destination")
	}
}

func TestExtract_RejectsAbsoluteEntry(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "abs.tar")
	writeRawTar(t, archivePath, func(tw *tar.Writer) {
		if err := tw.WriteHeader(&tar.Header{
			Name:     "/tmp/abs.txt",
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Format:   tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
	})

	_, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: t.TempDir(), Quiet: true}, policy.New())
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.AbsolutePath {
		t.Fatalf("Extract = %v, want AbsolutePath violation", err)
	}
}

func TestExtract_RejectsSymlinkEscape(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "link.tar")
	writeRawTar(t, archivePath, func(tw *tar.Writer) {
		if err := tw.WriteHeader(&tar.Header{
			Name:     "escape",
			Typeflag: tar.TypeSymlink,
			Linkname: "../../etc/passwd",
			Mode:     0o777,
			Format:   tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
	})

	dest := t.TempDir()
	_, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: dest, Quiet: true}, policy.New())
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.LinkOutsideRoot {
		t.Fatalf("Extract = %v, want LinkOutsideRoot violation", err)
	}
	if _, statErr := os.Lstat(filepath.Join(dest, "escape")); !os.IsNotExist(statErr) {
		t.Error("escaping symlink was materialized")
	}
}

func TestExtract_HardlinkWithinRoot(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "hl.tar")
	writeRawTar(t, archivePath, func(tw *tar.Writer) {
		body := []byte("shared")
		if err := tw.WriteHeader(&tar.Header{
			Name: "orig", Typeflag: tar.TypeReg, Mode: 0o644,
			Size: int64(len(body)), Format: tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		tw.Write(body)
		if err := tw.WriteHeader(&tar.Header{
			Name: "alias", Typeflag: tar.TypeLink, Linkname: "orig",
			Mode: 0o644, Format: tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
	})

	dest := t.TempDir()
	entries, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: dest, Quiet: true}, policy.New())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "alias"))
	if err != nil {
		t.Fatalf("read hardlink: %v", err)
	}
	if string(data) != "shared" {
		t.Errorf("alias content = %q, want shared", data)
	}
	// Hardlinks surface as file-kind manifest entries.
	for _, e := range entries {
		if e.Path == "alias" && e.Kind != manifest.KindFile {
			t.Errorf("alias kind = %v, want File", e.Kind)
		}
	}
}

func TestExtract_RejectsHardlinkEscape(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "hl.tar")
	writeRawTar(t, archivePath, func(tw *tar.Writer) {
		if err := tw.WriteHeader(&tar.Header{
			Name: "alias", Typeflag: tar.TypeLink, Linkname: "../outside",
			Mode: 0o644, Format: tar.FormatGNU,
		}); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
	})

	_, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: t.TempDir(), Quiet: true}, policy.New())
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.LinkOutsideRoot {
		t.Fatalf("Extract = %v, want LinkOutsideRoot violation", err)
	}
}

func TestExtract_QuotaAppliesToDeclaredSizes(t *testing.T) {
	src := buildTree(t, map[string]string{"big": "0123456789"})
	archivePath := filepath.Join(t.TempDir(), "a.tar")
	if _, err := Create(CreateOptions{ArchivePath: archivePath, Inputs: []string{src}, Quiet: true}, policy.New()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pol := policy.New()
	pol.Limits.MaxSingleFile = 5
	_, err := Extract(ExtractOptions{ArchivePath: archivePath, Destination: t.TempDir(), Quiet: true}, pol)
	var v *policy.Violation
	if !errors.As(err, &v) || v.Code != policy.SingleFileTooLarge {
		t.Fatalf("Extract = %v, want SingleFileTooLarge", err)
	}
}

func TestExtract_VerifiesSuppliedManifest(t *testing.T) {
	src := buildTree(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	workDir := t.TempDir()
	archivePath := filepath.Join(workDir, "a.tar")
	manifestPath := filepath.Join(workDir, "a.manifest.json")

	if _, err := Create(CreateOptions{
		ArchivePath: archivePath,
		Inputs:      []string{src},
		ManifestOut: manifestPath,
		Quiet:       true,
	}, policy.New()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Matching manifest verifies clean.
	if _, err := Extract(ExtractOptions{
		ArchivePath:  archivePath,
		Destination:  t.TempDir(),
		ManifestPath: manifestPath,
		Quiet:        true,
	}, policy.New()); err != nil {
		t.Fatalf("Extract with manifest: %v", err)
	}

	// A manifest expecting an extra file reports it as missing, and the
	// extraction itself is not rolled back.
	expected, err := manifest.Read(manifestPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	expected = append(expected, manifest.Entry{
		Path: "ghost.txt", SHA256: manifest.DigestBytes(nil), Kind: manifest.KindFile,
	})
	tampered := filepath.Join(workDir, "tampered.json")
	if err := manifest.Write(expected, tampered); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dest := t.TempDir()
	_, err = Extract(ExtractOptions{
		ArchivePath:  archivePath,
		Destination:  dest,
		ManifestPath: tampered,
		Quiet:        true,
	}, policy.New())
	var verr *manifest.VerifyError
	if !errors.As(err, &verr) || verr.Kind != manifest.MissingEntry {
		t.Fatalf("Extract = %v, want MissingEntry", err)
	}
	if _, statErr := os.Stat(filepath.Join(dest, "a.txt")); statErr != nil {
		t.Error("post-hoc verification rolled back materialized entries")
	}
}

func TestList_ReportsEntriesWithoutExtracting(t *testing.T) {
	src := buildTree(t, map[string]string{"x/file.txt": "content"})
	archivePath := filepath.Join(t.TempDir(), "a.tar")
	created, err := Create(CreateOptions{ArchivePath: archivePath, Inputs: []string{src}, Quiet: true}, policy.New())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	listed, err := List(ListOptions{ArchivePath: archivePath, Quiet: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != len(created) {
		t.Fatalf("listed %d entries, created %d", len(listed), len(created))
	}
	// Stream-side fingerprints match the creation-side manifest.
	if err := manifest.Verify(created, listed, false); err != nil {
		t.Errorf("list manifest diverges from create manifest: %v", err)
	}
}
