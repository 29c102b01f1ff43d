package manifest

import "fmt"

// VerifyErrorKind classifies manifest verification failures.
type VerifyErrorKind int

const (
	// MissingEntry: an expected path is absent from the actual set.
	MissingEntry VerifyErrorKind = iota + 1
	// Mismatch: fingerprint or kind differs for a shared path.
	Mismatch
	// UnexpectedEntry: an actual path is absent from the expected set
	// (strict mode only).
	UnexpectedEntry
)

// VerifyError reports the first divergence between an expected and an
// actual manifest.
type VerifyError struct {
	Kind     VerifyErrorKind
	Path     string
	Expected string // expected digest, Mismatch only
	Actual   string // actual digest, Mismatch only
}

func (e *VerifyError) Error() string {
	switch e.Kind {
	case MissingEntry:
		return fmt.Sprintf("manifest missing entry: %s", e.Path)
	case Mismatch:
		return fmt.Sprintf("manifest entry mismatch for %s: expected %s, actual %s",
			e.Path, e.Expected, e.Actual)
	case UnexpectedEntry:
		return fmt.Sprintf("manifest contains unexpected entry: %s", e.Path)
	default:
		return fmt.Sprintf("manifest verification failed for %s", e.Path)
	}
}

// Verify checks every expected entry against the actual set: it must exist
// with an identical fingerprint and kind. Unless relaxed, every actual entry
// must also appear in expected; relaxed mode permits additive drift. Both
// sets are walked in sorted path order so the first reported divergence is
// deterministic.
func Verify(expected, actual []Entry, relaxed bool) error {
	actualByPath := make(map[string]Entry, len(actual))
	for _, entry := range actual {
		actualByPath[entry.Path] = entry
	}

	for _, want := range expected {
		got, ok := actualByPath[want.Path]
		if !ok {
			return &VerifyError{Kind: MissingEntry, Path: want.Path}
		}
		if want.SHA256 != got.SHA256 || want.Kind != got.Kind {
			return &VerifyError{
				Kind:     Mismatch,
				Path:     want.Path,
				Expected: want.SHA256,
				Actual:   got.SHA256,
			}
		}
	}

	if !relaxed {
		expectedByPath := make(map[string]struct{}, len(expected))
		for _, entry := range expected {
			expectedByPath[entry.Path] = struct{}{}
		}
		for _, entry := range actual {
			if _, ok := expectedByPath[entry.Path]; !ok {
				return &VerifyError{Kind: UnexpectedEntry, Path: entry.Path}
			}
		}
	}

	return nil
}
