// Package zipw writes ZIP archives in one of two modes, chosen by what the
// destination supports.
//
// On a plain io.Writer entries stream: payloads whose sizes are unknown up
// front are followed by a data descriptor record and flagged as such. On an
// io.WriteSeeker the writer goes back and patches each local file header once
// the entry's sizes are known, producing archives that need no descriptors.
// Either way the trailing central directory carries the authoritative values.
package zipw

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/cd"
	"github.com/zippkg/zipp/extra"
	"github.com/zippkg/zipp/zipenc"
)

// ErrZip64Required is returned when an entry or the archive itself outgrows
// the 32-bit format limits while [Zip64Never] forbids the promotion, or when
// a streaming entry that was not promoted up front turns out to need it.
var ErrZip64Required = errors.New("archive requires ZIP64 but it is disabled or was not reserved")

// Zip64Mode controls when the 64-bit extensions are written.
type Zip64Mode int

const (
	// Zip64AsNeeded promotes entries and the end-of-directory records
	// exactly when a size, offset or count crosses its 32-bit limit. A
	// streaming entry of unknown size is only promoted when the header
	// declares UncompressedSize64 past the limit beforehand.
	Zip64AsNeeded Zip64Mode = iota

	// Zip64Always promotes every entry and always writes the ZIP64
	// end-of-directory records.
	Zip64Always

	// Zip64Never fails with ErrZip64Required instead of promoting.
	Zip64Never
)

// Options customises a Writer.
type Options struct {
	// Encoding is how entry names and comments are encoded. The zero
	// value writes UTF-8 and sets the UTF-8 flag.
	Encoding zipenc.Policy

	// Zip64 is the promotion mode; see Zip64Mode.
	Zip64 Zip64Mode

	// Method is the compression method used by Create. Defaults to
	// Deflate.
	Method uint16

	// Compressors overrides or extends the registered compressors for
	// this writer only.
	Compressors map[uint16]zipp.Compressor
}

// Writer writes one ZIP archive to a destination.
//
// Entries are created with Create, CreateHeader, CreateRaw or Copy, and at
// most one is open at a time; creating the next entry finishes the previous
// one. The final entry must be finished explicitly with CloseEntry, and
// Finish (or Close) writes the central directory.
type Writer struct {
	cw   *countWriter
	ws   io.WriteSeeker // non-nil in seekable mode
	base int64          // destination position of archive offset 0
	opts *Options

	cur     *fileWriter
	entries []*centralEntry
	comment []byte
	err     error

	finished bool
	owned    io.Closer // set by Create-the-file constructor
}

type centralEntry struct {
	fh     zipp.FileHeader
	fields extra.Fields // without the ZIP64 record, which is regenerated
}

// NewWriter returns a Writer targeting dst from its current position. If dst
// implements io.WriteSeeker the seekable mode is used; pass only an io.Writer
// to force streaming mode.
func NewWriter(dst io.Writer, optFns ...func(*Options)) *Writer {
	opts := &Options{Method: zipp.Deflate}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Method == 0 {
		opts.Method = zipp.Deflate
	}

	w := &Writer{cw: &countWriter{w: dst}, opts: opts}
	if ws, ok := dst.(io.WriteSeeker); ok {
		if base, err := ws.Seek(0, io.SeekCurrent); err == nil {
			w.ws, w.base = ws, base
		}
	}
	return w
}

// Create creates the archive file at path and returns a Writer in seekable
// mode that owns it; Close closes the file as well.
func Create(path string, optFns ...func(*Options)) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive error: %w", err)
	}

	w := NewWriter(f, optFns...)
	w.owned = f
	return w, nil
}

// WithEncoding returns an option setting [Options.Encoding].
func WithEncoding(p zipenc.Policy) func(*Options) {
	return func(opts *Options) {
		opts.Encoding = p
	}
}

// WithZip64 returns an option setting [Options.Zip64].
func WithZip64(mode Zip64Mode) func(*Options) {
	return func(opts *Options) {
		opts.Zip64 = mode
	}
}

// Create adds an entry with the given name and default settings: the
// writer's compression method, the current time, mode 0644 (directories,
// named with a trailing slash, get 0755). The previous entry, if still open,
// is finished first.
func (w *Writer) Create(name string) (io.Writer, error) {
	fh := &zipp.FileHeader{Name: name, Method: w.opts.Method, Modified: time.Now()}
	if fh.IsDir() {
		fh.SetMode(0755 | os.ModeDir)
		fh.Method = zipp.Store
	} else {
		fh.SetMode(0644)
	}
	return w.CreateHeader(fh)
}

// CreateHeader adds an entry described by fh, whose payload is compressed as
// it is written to the returned io.Writer. The writer takes ownership of fh's
// metadata from this point: sizes and CRC32 are filled in when the entry is
// finished.
//
// Directory entries (trailing slash) must not have payload bytes written.
func (w *Writer) CreateHeader(fh *zipp.FileHeader) (io.Writer, error) {
	return w.add(fh, false)
}

// CreateRaw adds an entry whose payload is written pre-compressed, exactly as
// it should appear on disk. fh must declare Method, CRC32, CompressedSize64
// and UncompressedSize64; the byte count written is verified against the
// declared compressed size when the entry is finished.
func (w *Writer) CreateRaw(fh *zipp.FileHeader) (io.Writer, error) {
	return w.add(fh, true)
}

// Copy transplants an entry read from a central directory scan into this
// archive without decompressing it. Metadata including the extra-field chain
// is preserved; offsets and the ZIP64 bookkeeping are regenerated.
func (w *Writer) Copy(e *cd.Entry) error {
	src, err := e.OpenRaw()
	if err != nil {
		return err
	}

	fh := e.FileHeader
	dst, err := w.CreateRaw(&fh)
	if err != nil {
		return err
	}
	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s error: %w", e.Name, err)
	}
	return w.CloseEntry()
}

func (w *Writer) add(fh *zipp.FileHeader, raw bool) (io.Writer, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.finished {
		return nil, errors.New("archive already finished")
	}
	if w.cur != nil {
		if err := w.closeCurrent(); err != nil {
			return nil, err
		}
	}

	fw, err := w.newFileWriter(fh, raw)
	if err != nil {
		w.err = err
		return nil, err
	}
	w.cur = fw
	return fw, nil
}

// CloseEntry finishes the entry currently open for writing: the compressor is
// flushed and, depending on the mode, the data descriptor is emitted or the
// local file header is patched.
func (w *Writer) CloseEntry() error {
	if w.err != nil {
		return w.err
	}
	if w.cur == nil {
		return errors.New("no entry is open")
	}
	return w.closeCurrent()
}

func (w *Writer) closeCurrent() error {
	err := w.cur.close()
	w.cur = nil
	if err != nil {
		w.err = err
		return err
	}
	return nil
}

// SetComment sets the archive comment written with the end-of-directory
// record. The encoded form must fit the record's 16-bit length.
func (w *Writer) SetComment(comment string) error {
	enc := w.opts.Encoding.Encoding
	if enc == nil {
		enc = zipenc.UTF8
	}
	b := enc.Encode(comment)
	if len(b) > zipp.Max16 {
		return fmt.Errorf("archive comment is %d bytes encoded; max %d", len(b), zipp.Max16)
	}
	w.comment = b
	return nil
}

// Finish writes the central directory and the end-of-directory records.
// Returns [zipp.ErrUnclosedEntry] if the last entry was never closed with
// CloseEntry. The destination itself is not closed.
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	if w.finished {
		return nil
	}
	if w.cur != nil {
		w.err = zipp.ErrUnclosedEntry
		return w.err
	}

	if err := w.writeTrailer(); err != nil {
		w.err = err
		return err
	}
	w.finished = true
	return nil
}

// Close finishes the archive and, when the Writer owns its destination file,
// closes it.
func (w *Writer) Close() error {
	err := w.Finish()
	if w.owned != nil {
		if cerr := w.owned.Close(); err == nil {
			err = cerr
		}
		w.owned = nil
	}
	return err
}

// Offset returns the number of bytes written to the archive so far.
func (w *Writer) Offset() int64 {
	return int64(w.cw.n)
}

func (w *Writer) compressor(method uint16) (zipp.Compressor, bool) {
	if c, ok := w.opts.Compressors[method]; ok {
		return c, true
	}
	return zipp.NewCompressor(method)
}

type countWriter struct {
	w io.Writer
	n uint64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
