package archive

import (
	"archive/tar"
	"time"

	"github.com/odvcencio/safetar/pkg/manifest"
)

// Entry is one validated, quota-checked unit produced by the walker. It is
// consumed while writing the tar stream and then dropped.
type Entry struct {
	Absolute   string
	Relative   string
	Kind       manifest.Kind
	Size       uint64
	LinkTarget string
	ModTime    time.Time
	Mode       uint32
}

func (e *Entry) kindLabel() string {
	switch e.Kind {
	case manifest.KindDirectory:
		return "dir"
	case manifest.KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

func (e *Entry) toManifestItem() manifest.Item {
	return manifest.Item{
		Relative:   e.Relative,
		Absolute:   e.Absolute,
		Kind:       e.Kind,
		LinkTarget: e.LinkTarget,
		Size:       e.Size,
		MTime:      e.ModTime,
	}
}

// classifyHeader maps a tar header onto the closed entry-kind set. Regular,
// continuous, and sparse entries are files; hardlinks are file-kind (their
// materialization is special-cased by the extraction driver); anything
// unrecognized defaults to file.
func classifyHeader(hdr *tar.Header) manifest.Kind {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return manifest.KindDirectory
	case tar.TypeSymlink:
		return manifest.KindSymlink
	case tar.TypeReg, tar.TypeCont, tar.TypeGNUSparse, tar.TypeLink:
		return manifest.KindFile
	default:
		return manifest.KindFile
	}
}
