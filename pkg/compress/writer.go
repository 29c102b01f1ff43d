package compress

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Writer encodes a stream with the requested codec. Close finalizes the
// codec trailer and flushes buffers; the underlying sink is not closed.
type Writer struct {
	codec  Codec
	inner  io.Writer
	buf    *bufio.Writer
	finish func() error
}

// WrapWriter wraps w with the requested codec's encoder.
func WrapWriter(w io.Writer, codec Codec) (*Writer, error) {
	buf := bufio.NewWriter(w)
	switch codec {
	case Gzip:
		gz := gzip.NewWriter(buf)
		return &Writer{codec: codec, inner: gz, buf: buf, finish: gz.Close}, nil
	case Xz:
		xw, err := xz.NewWriter(buf)
		if err != nil {
			return nil, err
		}
		return &Writer{codec: codec, inner: xw, buf: buf, finish: xw.Close}, nil
	case Zstd:
		enc, err := zstd.NewWriter(buf)
		if err != nil {
			return nil, err
		}
		return &Writer{codec: codec, inner: enc, buf: buf, finish: enc.Close}, nil
	default:
		return &Writer{codec: None, inner: buf, buf: buf}, nil
	}
}

// Codec returns the active codec.
func (w *Writer) Codec() Codec { return w.codec }

func (w *Writer) Write(p []byte) (int, error) {
	return w.inner.Write(p)
}

// Close finishes the encoded stream and flushes buffered bytes to the sink.
func (w *Writer) Close() error {
	if w.finish != nil {
		if err := w.finish(); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}
