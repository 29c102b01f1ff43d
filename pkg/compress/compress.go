// Package compress wraps byte streams with the archive container codecs:
// none, gzip, xz, and zstd. The read side auto-detects the codec from
// leading magic bytes; the core consumes the wrapped streams without
// inspection.
package compress

import "fmt"

// Codec identifies a compression codec for the archive container.
type Codec int

const (
	None Codec = iota
	Gzip
	Xz
	Zstd
)

var (
	gzipMagic = []byte{0x1F, 0x8B}
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// Detect guesses the codec from the leading bytes of a stream.
func Detect(header []byte) Codec {
	switch {
	case hasPrefix(header, gzipMagic):
		return Gzip
	case hasPrefix(header, xzMagic):
		return Xz
	case hasPrefix(header, zstdMagic):
		return Zstd
	default:
		return None
	}
}

// Parse resolves a codec name as used in configuration files.
func Parse(name string) (Codec, error) {
	switch name {
	case "", "none":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "xz":
		return Xz, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown compression codec %q", name)
	}
}

func (c Codec) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Xz:
		return "xz"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
