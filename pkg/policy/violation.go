package policy

import "fmt"

// Code identifies the class of a policy violation.
type Code int

const (
	// EmptyPath rejects empty entry paths.
	EmptyPath Code = iota + 1
	// AbsolutePath rejects absolute paths when AllowAbsolute is unset.
	AbsolutePath
	// RootEscape rejects paths whose cleaned form leaves the root.
	RootEscape
	// ParentTraversal rejects paths carrying a ".." component.
	ParentTraversal
	// InvalidUTF8Path rejects paths that are not valid UTF-8.
	InvalidUTF8Path
	// LinkOutsideRoot rejects link targets that resolve outside the root.
	LinkOutsideRoot
	// FileCountExceeded rejects an entry once MaxFiles is crossed.
	FileCountExceeded
	// TotalBytesExceeded rejects an entry once MaxTotalBytes is crossed.
	TotalBytesExceeded
	// SingleFileTooLarge rejects an entry larger than MaxSingleFile.
	SingleFileTooLarge
	// DepthExceeded rejects an entry nested deeper than MaxDepth.
	DepthExceeded
)

// String returns the stable name used in error messages.
func (c Code) String() string {
	switch c {
	case EmptyPath:
		return "empty path"
	case AbsolutePath:
		return "absolute path rejected"
	case RootEscape:
		return "path escapes archive root"
	case ParentTraversal:
		return "path contains parent traversal"
	case InvalidUTF8Path:
		return "path contains invalid UTF-8"
	case LinkOutsideRoot:
		return "link target escapes root"
	case FileCountExceeded:
		return "file count exceeded"
	case TotalBytesExceeded:
		return "total bytes exceeded"
	case SingleFileTooLarge:
		return "single file too large"
	case DepthExceeded:
		return "directory depth exceeded"
	default:
		return "policy violation"
	}
}

// Violation is a terminal policy failure. Every violation aborts the whole
// create or extract operation; there is no skip-and-continue mode.
type Violation struct {
	Code   Code
	Path   string // offending path or link target, if any
	Limit  uint64 // configured limit for quota codes, else 0
	Actual uint64 // observed value for quota codes, else 0
}

func (v *Violation) Error() string {
	switch v.Code {
	case EmptyPath:
		return v.Code.String()
	case FileCountExceeded, TotalBytesExceeded:
		return fmt.Sprintf("%s (limit %d, actual %d)", v.Code, v.Limit, v.Actual)
	case SingleFileTooLarge, DepthExceeded:
		return fmt.Sprintf("%s for %s (limit %d, actual %d)", v.Code, v.Path, v.Limit, v.Actual)
	default:
		return fmt.Sprintf("%s: %s", v.Code, v.Path)
	}
}
