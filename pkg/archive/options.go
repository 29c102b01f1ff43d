package archive

import "github.com/odvcencio/safetar/pkg/compress"

// CreateOptions steers archive creation.
type CreateOptions struct {
	ArchivePath string
	Inputs      []string
	WorkDir     string // change here before resolving inputs; "" = cwd
	Codec       compress.Codec
	Verbose     bool
	Quiet       bool
	PrintPlan   bool // preview entries without writing the archive
	Excludes    []string
	ExcludeFrom []string
	ManifestOut string
}

// ExtractOptions steers archive extraction.
type ExtractOptions struct {
	ArchivePath     string
	Destination     string
	Verbose         bool
	Quiet           bool
	Strict          bool // accepted for compatibility; both modes abort on the first violation
	ManifestPath    string
	ManifestRelaxed bool
	NumericOwner    bool
	NoSameOwner     bool
}

// ListOptions steers archive listing.
type ListOptions struct {
	ArchivePath string
	Verbose     bool
	Quiet       bool
	JSON        bool
}
