package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func compile(t *testing.T, patterns ...string) *ExcludeSet {
	t.Helper()
	set, err := CompileExcludes(patterns, nil)
	if err != nil {
		t.Fatalf("CompileExcludes(%v): %v", patterns, err)
	}
	return set
}

func TestExclude_BasenamePattern(t *testing.T) {
	set := compile(t, "*.log")
	if !set.Match("skip.log", false) {
		t.Error("*.log should match skip.log")
	}
	if !set.Match("nested/skip.log", false) {
		t.Error("*.log should match the basename of nested/skip.log")
	}
	if set.Match("nested/keep.txt", false) {
		t.Error("*.log should not match keep.txt")
	}
}

func TestExclude_PathPattern(t *testing.T) {
	set := compile(t, "build/*.o")
	if !set.Match("build/main.o", false) {
		t.Error("build/*.o should match build/main.o")
	}
	if set.Match("src/main.o", false) {
		t.Error("build/*.o should not match src/main.o")
	}
	if set.Match("build/deep/main.o", false) {
		t.Error("single * should not cross path separators")
	}
}

func TestExclude_Globstar(t *testing.T) {
	set := compile(t, "**/cache/*")
	if !set.Match("a/b/cache/x", false) {
		t.Error("**/cache/* should match a/b/cache/x")
	}
	if !set.Match("cache/x", false) {
		t.Error("**/cache/* should match cache/x at the top level")
	}
	if set.Match("cache", true) {
		t.Error("**/cache/* should not match the cache directory itself")
	}
}

func TestExclude_DirOnly(t *testing.T) {
	set := compile(t, "tmp/")
	if !set.Match("tmp", true) {
		t.Error("tmp/ should match the tmp directory")
	}
	if set.Match("tmp", false) {
		t.Error("tmp/ should not match a regular file named tmp")
	}
}

func TestExclude_EmptySetIsNil(t *testing.T) {
	set, err := CompileExcludes(nil, nil)
	if err != nil {
		t.Fatalf("CompileExcludes: %v", err)
	}
	if set != nil {
		t.Error("empty pattern list should compile to nil")
	}
	// A nil set matches nothing.
	if set.Match("anything", false) {
		t.Error("nil set matched")
	}
}

func TestExclude_FromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "excludes.txt")
	content := "# comment\n\n*.log\nbuild/\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write excludes: %v", err)
	}

	set, err := CompileExcludes(nil, []string{file})
	if err != nil {
		t.Fatalf("CompileExcludes: %v", err)
	}
	if !set.Match("a.log", false) {
		t.Error("pattern from file not applied")
	}
	if !set.Match("build", true) {
		t.Error("dir pattern from file not applied")
	}

	// Missing exclude files are skipped, not errors.
	if _, err := CompileExcludes(nil, []string{filepath.Join(dir, "missing")}); err != nil {
		t.Errorf("missing exclude file should be ignored: %v", err)
	}
}

func TestExclude_InvalidPattern(t *testing.T) {
	if _, err := CompileExcludes([]string{"[unclosed"}, nil); err == nil {
		t.Error("invalid pattern accepted")
	}
}
