package compress

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Reader decodes a stream according to a codec auto-detected from its
// leading magic bytes.
type Reader struct {
	codec Codec
	inner io.Reader
	zdec  *zstd.Decoder
}

// WrapReader buffers r, peeks at the leading bytes, and wraps r with the
// detected codec's decoder. An unrecognized header passes through as-is.
func WrapReader(r io.Reader) (*Reader, error) {
	buf := bufio.NewReader(r)
	header, err := buf.Peek(8)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	codec := Detect(header)

	switch codec {
	case Gzip:
		gz, err := gzip.NewReader(buf)
		if err != nil {
			return nil, err
		}
		return &Reader{codec: codec, inner: gz}, nil
	case Xz:
		xr, err := xz.NewReader(buf)
		if err != nil {
			return nil, err
		}
		return &Reader{codec: codec, inner: xr}, nil
	case Zstd:
		dec, err := zstd.NewReader(buf)
		if err != nil {
			return nil, err
		}
		return &Reader{codec: codec, inner: dec.IOReadCloser(), zdec: dec}, nil
	default:
		return &Reader{codec: None, inner: buf}, nil
	}
}

// Codec returns the detected codec.
func (r *Reader) Codec() Codec { return r.codec }

func (r *Reader) Read(p []byte) (int, error) {
	return r.inner.Read(p)
}

// Close releases decoder resources. The underlying source is not closed.
func (r *Reader) Close() error {
	if r.zdec != nil {
		r.zdec.Close()
	}
	if c, ok := r.inner.(io.Closer); ok && r.zdec == nil {
		return c.Close()
	}
	return nil
}
