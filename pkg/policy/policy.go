// Package policy implements the security policy engine: lexical path
// normalization and validation, link-target confinement, and per-operation
// resource quota tracking.
//
// Validation is purely lexical and never consults the filesystem, so it is
// deterministic and cannot race with concurrent filesystem mutation. The
// residual TOCTOU window between validation and materialization is a
// documented limitation, not something this package defends against.
package policy

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Limits bounds resource consumption for one create or extract operation.
type Limits struct {
	MaxFiles      uint64
	MaxTotalBytes uint64
	MaxSingleFile uint64
	MaxDepth      int
}

// DefaultLimits returns the built-in resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      200_000,
		MaxTotalBytes: 8 << 30,
		MaxSingleFile: 2 << 30,
		MaxDepth:      64,
	}
}

// LinkType distinguishes link kinds for EnforceLinkPolicy.
type LinkType int

const (
	LinkSymlink LinkType = iota
	LinkHardlink
)

// SecurityPolicy is the immutable configuration for one operation. Build it
// once, then derive a UsageTracker per create/extract call with Usage.
type SecurityPolicy struct {
	Limits                   Limits
	AllowAbsolute            bool
	AllowParentComponents    bool
	FollowSymlinks           bool
	AllowSymlinkOutsideRoot  bool
	AllowHardlinkOutsideRoot bool
}

// New returns a policy with default limits and all escape hatches disabled.
func New() SecurityPolicy {
	return SecurityPolicy{Limits: DefaultLimits()}
}

// ValidatedPath is the only sanctioned way to address the filesystem during
// an operation. Abs is always underneath the operation's root; Rel is Abs
// with the root stripped, forward-slash separated. Produced exclusively by
// NormalizeAndValidate.
type ValidatedPath struct {
	Rel string
	Abs string
}

// NormalizeAndValidate turns an untrusted path plus a canonical root into a
// confined ValidatedPath, or a *Violation describing why it was rejected.
//
// The path is joined to root (if relative) and lexically cleaned; the
// cleaned result must remain under root. With AllowParentComponents unset,
// any literal ".." component in the supplied path is rejected outright;
// filepath.Clean folds ".." away, so the scan runs on the raw components.
func (p SecurityPolicy) NormalizeAndValidate(path, root string) (ValidatedPath, error) {
	if path == "" {
		return ValidatedPath{}, &Violation{Code: EmptyPath}
	}
	if !utf8.ValidString(path) {
		return ValidatedPath{}, &Violation{Code: InvalidUTF8Path, Path: path}
	}
	if filepath.IsAbs(path) && !p.AllowAbsolute {
		return ValidatedPath{}, &Violation{Code: AbsolutePath, Path: path}
	}
	if !p.AllowParentComponents && hasParentComponent(path) {
		return ValidatedPath{}, &Violation{Code: ParentTraversal, Path: path}
	}

	joined := path
	if !filepath.IsAbs(path) {
		joined = filepath.Join(root, path)
	}
	cleaned := filepath.Clean(joined)

	rel, ok := containedRel(cleaned, root)
	if !ok {
		return ValidatedPath{}, &Violation{Code: RootEscape, Path: cleaned}
	}
	return ValidatedPath{Rel: rel, Abs: cleaned}, nil
}

// EnforceLinkPolicy confines a symlink or hardlink target to root. Relative
// targets must be pre-joined against the link's own parent directory by the
// caller; a bare relative target is validated against root itself. Any
// underlying normalization failure is reported uniformly as LinkOutsideRoot.
func (p SecurityPolicy) EnforceLinkPolicy(target, root string, kind LinkType) error {
	allowOutside := p.AllowSymlinkOutsideRoot
	if kind == LinkHardlink {
		allowOutside = p.AllowHardlinkOutsideRoot
	}
	if allowOutside {
		return nil
	}

	if filepath.IsAbs(target) {
		cleaned := filepath.Clean(target)
		if _, ok := containedRel(cleaned, root); ok {
			return nil
		}
		return &Violation{Code: LinkOutsideRoot, Path: target}
	}

	validated, err := p.NormalizeAndValidate(target, root)
	if err != nil {
		return &Violation{Code: LinkOutsideRoot, Path: target}
	}
	if _, ok := containedRel(validated.Abs, root); !ok {
		return &Violation{Code: LinkOutsideRoot, Path: target}
	}
	return nil
}

// Usage derives a fresh tracker seeded with this policy's limits. One
// tracker per operation; trackers are not safe for concurrent use.
func (p SecurityPolicy) Usage() *UsageTracker {
	return &UsageTracker{limits: p.Limits}
}

// containedRel reports whether cleaned sits at or under root, returning the
// forward-slash relative remainder when it does.
func containedRel(cleaned, root string) (string, bool) {
	root = filepath.Clean(root)
	if cleaned == root {
		return "", true
	}
	prefix := root + string(filepath.Separator)
	if root == string(filepath.Separator) {
		prefix = root
	}
	if !strings.HasPrefix(cleaned, prefix) {
		return "", false
	}
	return filepath.ToSlash(cleaned[len(prefix):]), true
}

func hasParentComponent(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
