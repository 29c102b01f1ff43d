package policy

import (
	"math"
	"strings"
)

// UsageTracker accounts files, bytes, and depth against configured limits
// during one create or extract pass. Observe must be called exactly once per
// entry, strictly in discovery/stream order: ordering determines which entry
// trips a limit, and the tracker is not safe for concurrent mutation.
type UsageTracker struct {
	limits           Limits
	filesSeen        uint64
	totalBytes       uint64
	maxDepthObserved int
}

// Observe records one entry with its declared size. The check order is
// fixed: single-file size, depth, file count, total bytes. Counters mutated
// for previously accepted entries stay mutated even when a later entry is
// rejected; state is strictly monotonic and never rolled back.
func (u *UsageTracker) Observe(validated ValidatedPath, size uint64) error {
	if size > u.limits.MaxSingleFile {
		return &Violation{
			Code:   SingleFileTooLarge,
			Path:   validated.Rel,
			Limit:  u.limits.MaxSingleFile,
			Actual: size,
		}
	}

	depth, err := depthOf(validated.Rel)
	if err != nil {
		return err
	}
	if depth > u.limits.MaxDepth {
		return &Violation{
			Code:   DepthExceeded,
			Path:   validated.Rel,
			Limit:  uint64(u.limits.MaxDepth),
			Actual: uint64(depth),
		}
	}
	if depth > u.maxDepthObserved {
		u.maxDepthObserved = depth
	}

	u.filesSeen = saturatingAdd(u.filesSeen, 1)
	if u.filesSeen > u.limits.MaxFiles {
		return &Violation{
			Code:   FileCountExceeded,
			Limit:  u.limits.MaxFiles,
			Actual: u.filesSeen,
		}
	}

	u.totalBytes = saturatingAdd(u.totalBytes, size)
	if u.totalBytes > u.limits.MaxTotalBytes {
		return &Violation{
			Code:   TotalBytesExceeded,
			Limit:  u.limits.MaxTotalBytes,
			Actual: u.totalBytes,
		}
	}

	return nil
}

// FilesSeen returns the number of entries accounted so far.
func (u *UsageTracker) FilesSeen() uint64 { return u.filesSeen }

// TotalBytes returns the byte total accounted so far.
func (u *UsageTracker) TotalBytes() uint64 { return u.totalBytes }

// depthOf counts the normal components of a validated relative path. A
// residual ".." here means normalization was bypassed, so it is still
// reported as ParentTraversal rather than trusted.
func depthOf(rel string) (int, error) {
	if rel == "" {
		return 0, nil
	}
	depth := 0
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "", ".":
		case "..":
			return 0, &Violation{Code: ParentTraversal, Path: rel}
		default:
			depth++
		}
	}
	return depth, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
