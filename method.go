package zipp

import (
	"io"
	"strconv"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression method codes. The codec itself never compresses or
// decompresses; a method code merely selects a registered byte-stream
// transform.
const (
	Store     uint16 = 0
	Deflate   uint16 = 8
	BZip2     uint16 = 12
	LZMA      uint16 = 14
	Zstandard uint16 = 93
	XZ        uint16 = 95
)

// A Compressor returns a new compressing writer, writing its compressed
// output to w. The WriteCloser's Close method must be used to flush pending
// data; it must not close w.
type Compressor func(w io.Writer) (io.WriteCloser, error)

// A Decompressor returns a new decompressing reader, reading compressed input
// from r. The ReadCloser's Close method must be called to release resources;
// it must not close r.
type Decompressor func(r io.Reader) io.ReadCloser

var (
	compressors   sync.Map // uint16 -> Compressor
	decompressors sync.Map // uint16 -> Decompressor
)

// RegisterCompressor registers a custom compressor for the given method code,
// replacing any built-in transform. Writers can override the registration
// individually.
func RegisterCompressor(method uint16, comp Compressor) {
	compressors.Store(method, comp)
}

// RegisterDecompressor registers a custom decompressor for the given method
// code, replacing any built-in transform. Readers can override the
// registration individually.
func RegisterDecompressor(method uint16, dcomp Decompressor) {
	decompressors.Store(method, dcomp)
}

// NewCompressor returns the registered compressor for the given method code.
func NewCompressor(method uint16) (Compressor, bool) {
	if v, ok := compressors.Load(method); ok {
		return v.(Compressor), true
	}
	return nil, false
}

// NewDecompressor returns the registered decompressor for the given method
// code.
func NewDecompressor(method uint16) (Decompressor, bool) {
	if v, ok := decompressors.Load(method); ok {
		return v.(Decompressor), true
	}
	return nil, false
}

func init() {
	// Store, Deflate, bzip2, Zstandard and XZ payloads are the plain
	// streams of their respective formats, so the transforms plug in
	// directly. LZMA (method 14) uses ZIP-specific framing and has no
	// built-in transform; callers that need it register their own.
	RegisterCompressor(Store, func(w io.Writer) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	})
	RegisterDecompressor(Store, func(r io.Reader) io.ReadCloser {
		return io.NopCloser(r)
	})

	RegisterCompressor(Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	RegisterDecompressor(Deflate, flate.NewReader)

	RegisterCompressor(BZip2, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, nil)
	})
	RegisterDecompressor(BZip2, func(r io.Reader) io.ReadCloser {
		zr, err := bzip2.NewReader(r, nil)
		if err != nil {
			return errReadCloser{err}
		}
		return zr
	})

	RegisterCompressor(Zstandard, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
	RegisterDecompressor(Zstandard, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return errReadCloser{err}
		}
		return zr.IOReadCloser()
	})

	RegisterCompressor(XZ, func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})
	RegisterDecompressor(XZ, func(r io.Reader) io.ReadCloser {
		zr, err := xz.NewReader(r)
		if err != nil {
			return errReadCloser{err}
		}
		return io.NopCloser(zr)
	})
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// errReadCloser defers a decompressor construction error to the first Read.
type errReadCloser struct {
	err error
}

func (r errReadCloser) Read([]byte) (int, error) {
	return 0, r.err
}

func (errReadCloser) Close() error {
	return nil
}

// MethodName returns a human-readable name for well-known method codes.
func MethodName(method uint16) string {
	switch method {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case BZip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case Zstandard:
		return "zstd"
	case XZ:
		return "xz"
	default:
		return "method-" + strconv.Itoa(int(method))
	}
}
