// Package scan reads ZIP archives front to back through their local file
// headers, without ever seeing the central directory. This is the only way to
// read from a non-seekable stream, at the cost of the directory's authority:
// sizes and checksums of entries written in streaming mode are only known
// after their payload, from the data descriptor record that follows it.
//
// Prefer [github.com/zippkg/zipp/cd] whenever the input supports seeking.
package scan

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/extra"
	"github.com/zippkg/zipp/zipenc"
)

// DefaultMaxDescriptorScan caps how many payload bytes a descriptor search
// consumes before giving up, unless overridden.
const DefaultMaxDescriptorScan int64 = 4 * 1024 * 1024 * 1024

// Options customises a streaming scan.
type Options struct {
	// Ctx can be given to cancel long copies.
	Ctx context.Context

	// Encoding is how entry names are decoded. The zero value trusts the
	// per-entry UTF-8 flag and falls back to UTF-8.
	Encoding zipenc.Policy

	// Decompressors overrides or extends the registered decompressors for
	// this scan only.
	Decompressors map[uint16]zipp.Decompressor

	// MaxDescriptorScan caps how many payload bytes a single entry's
	// descriptor search may consume before failing with
	// [zipp.DescriptorMismatchError]. Defaults to DefaultMaxDescriptorScan;
	// negative means unlimited.
	MaxDescriptorScan int64

	// SizeHint, when non-nil, is consulted for entries that declare a data
	// descriptor. If it fills in the header's CRC32 and both sizes
	// (typically from a central directory read elsewhere) and returns
	// true, the payload is read by exact length and the descriptor search
	// is skipped entirely.
	SizeHint func(*zipp.FileHeader) bool
}

// Reader reads entries sequentially from a stream.
//
// Next advances to the following entry; Read reads the decompressed payload
// of the current one. The CRC-32 of each fully read entry is verified against
// the header or, for streaming entries, the data descriptor.
type Reader struct {
	br   *bufio.Reader
	opts *Options

	offset int64
	cur    *entryState
	err    error
}

type entryState struct {
	fh      *zipp.FileHeader
	raw     drainReader
	stream  io.Reader
	readErr error
}

// drainReader is a payload reader that can be fast-forwarded to its end,
// consuming any trailing descriptor record.
type drainReader interface {
	io.Reader
	Drain() error
}

// NewReader returns a Reader scanning src from its current position, which
// must be the start of the first local file header.
func NewReader(src io.Reader, optFns ...func(*Options)) *Reader {
	opts := &Options{Ctx: context.Background(), MaxDescriptorScan: DefaultMaxDescriptorScan}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}

	return &Reader{br: bufio.NewReaderSize(src, 64*1024), opts: opts}
}

// Next advances to the next entry, returning its header. The previous entry's
// remaining payload, and its data descriptor if one was declared, are
// consumed and discarded.
//
// Returns io.EOF once the central directory (or the end of the stream) is
// reached. Headers of streaming entries carry zero sizes and CRC32 until
// their payload has been fully read.
func (r *Reader) Next() (*zipp.FileHeader, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := r.opts.Ctx.Err(); err != nil {
		return nil, err
	}

	if r.cur != nil {
		if err := r.cur.raw.Drain(); err != nil {
			r.err = err
			return nil, err
		}
		r.cur = nil
	}

	sig, err := r.br.Peek(4)
	if err != nil {
		if len(sig) == 0 && errors.Is(err, io.EOF) {
			r.err = io.EOF
			return nil, io.EOF
		}
		r.err = fmt.Errorf("next local file header: read error: %w", err)
		return nil, r.err
	}

	switch binary.LittleEndian.Uint32(sig) {
	case zipp.SigLocalFileHeader:
	case zipp.SigCentralDirectory, zipp.SigEOCD, zipp.SigZip64EOCD, zipp.SigZip64EOCDLocator:
		// the entry region has ended; the trailing directory carries
		// the authoritative metadata but is invisible to a stream.
		r.err = io.EOF
		return nil, io.EOF
	default:
		r.err = &zipp.MalformedRecordError{
			Record: "local file header",
			Err:    fmt.Errorf("unexpected signature 0x%08x", binary.LittleEndian.Uint32(sig)),
		}
		return nil, r.err
	}

	fh, err := r.readHeader()
	if err != nil {
		r.err = err
		return nil, err
	}

	r.cur = r.openEntry(fh)
	return fh, nil
}

// Read reads from the current entry's decompressed payload. The Read that
// reaches EOF has already consumed the entry's data descriptor, if any, so
// the header's sizes and CRC32 are final by then.
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	if r.cur.readErr != nil {
		return 0, r.cur.readErr
	}
	return r.cur.stream.Read(p)
}

// WriteTo copies the current entry's decompressed payload to dst, honouring
// the scan's context.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	var written int64
	buf := make([]byte, 32*1024)
	for {
		if err := r.opts.Ctx.Err(); err != nil {
			return written, err
		}

		n, err := r.Read(buf)
		if n > 0 {
			nw, werr := dst.Write(buf[:n])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw < n {
				return written, io.ErrShortWrite
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// readHeader consumes one complete local file header from the stream.
func (r *Reader) readHeader() (*zipp.FileHeader, error) {
	start := r.offset

	buf := make([]byte, zipp.LocalFileHeaderLen)
	if err := r.readFull(buf); err != nil {
		return nil, &zipp.MalformedRecordError{Record: "local file header", Err: err}
	}

	b := zipp.ReadBuf(buf)
	b.Skip(4)
	fh := &zipp.FileHeader{Offset: uint64(start)}
	fh.ReaderVersion = b.Uint16()
	fh.Flags = b.Uint16()
	fh.Method = b.Uint16()
	fh.ModifiedTime = b.Uint16()
	fh.ModifiedDate = b.Uint16()
	fh.CRC32 = b.Uint32()
	fh.CompressedSize64 = uint64(b.Uint32())
	fh.UncompressedSize64 = uint64(b.Uint32())
	n := int(b.Uint16())
	m := int(b.Uint16())

	nm := make([]byte, n+m)
	if err := r.readFull(nm); err != nil {
		return nil, &zipp.MalformedRecordError{Record: "local file header", Err: err}
	}
	rawName := nm[:n]
	fh.Extra = append([]byte(nil), nm[n:]...)

	fields := extra.Parse(fh.Extra)

	needUSize := fh.UncompressedSize64 == zipp.Max32
	needCSize := fh.CompressedSize64 == zipp.Max32
	if z := fields.Zip64(); z != nil && (needUSize || needCSize) {
		if err := z.Resolve(needUSize, needCSize, false, false); err != nil {
			return nil, fmt.Errorf("entry at offset %d: %w", start, err)
		}
		if z.HasUncompressedSize {
			fh.UncompressedSize64 = z.UncompressedSize
		}
		if z.HasCompressedSize {
			fh.CompressedSize64 = z.CompressedSize
		}
	}

	fh.Modified = zipp.MSDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)
	if ts := fields.Timestamp(); ts != nil && ts.HasModTime {
		fh.Modified = ts.ModTime
	}

	fh.Name = decodeName(r.opts.Encoding, rawName, fh.IsUTF8(), fields.UnicodePath())
	if fh.Name != string(rawName) {
		fh.RawName = append([]byte(nil), rawName...)
	}
	fh.NonUTF8 = !fh.IsUTF8() && !utf8.Valid(rawName)

	if fh.UsesDataDescriptor() {
		// streaming entries leave these pending until the descriptor.
		fh.CRC32 = 0
		fh.CompressedSize64 = 0
		fh.UncompressedSize64 = 0
	}

	return fh, nil
}

// openEntry builds the raw and decompressed pipelines for the entry just
// parsed.
func (r *Reader) openEntry(fh *zipp.FileHeader) *entryState {
	st := &entryState{fh: fh}

	zip64Hint := extra.Parse(fh.Extra).Zip64() != nil
	if fh.UsesDataDescriptor() && !(r.opts.SizeHint != nil && r.opts.SizeHint(fh)) {
		st.raw = &descriptorReader{r: r, fh: fh, zip64Hint: zip64Hint}
	} else {
		st.raw = &sizedReader{
			r:          r,
			fh:         fh,
			remaining:  int64(fh.CompressedSize64),
			descriptor: fh.UsesDataDescriptor(),
			zip64Hint:  zip64Hint,
		}
	}

	if fh.Encrypted() {
		st.readErr = fmt.Errorf("read %s: %w", fh.Name, zipp.ErrEncrypted)
		return st
	}

	dcomp, ok := r.opts.Decompressors[fh.Method]
	if !ok {
		if dcomp, ok = zipp.NewDecompressor(fh.Method); !ok {
			st.readErr = fmt.Errorf("read %s: %s: %w", fh.Name, zipp.MethodName(fh.Method), zipp.ErrMethod)
			return st
		}
	}

	st.stream = &entryStream{dec: dcomp(st.raw), raw: st.raw, fh: fh}
	return st
}

func (r *Reader) read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.offset += int64(n)
	return n, err
}

func (r *Reader) readFull(p []byte) error {
	n, err := io.ReadFull(r.br, p)
	r.offset += int64(n)
	return err
}

func (r *Reader) discard(n int) error {
	d, err := r.br.Discard(n)
	r.offset += int64(d)
	return err
}

// decodeName decodes an entry name, preferring a Unicode shadow extra field
// whose CRC-32 binds it to these exact raw bytes.
func decodeName(p zipenc.Policy, raw []byte, utf8Flag bool, shadow *extra.Unicode) string {
	if shadow != nil {
		if s, ok := shadow.TextIfMatches(raw); ok {
			return s
		}
	}
	return p.DecodeText(raw, utf8Flag)
}
