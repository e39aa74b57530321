// Package cd reads ZIP archives through their central directory: the trailing
// end-of-central-directory record is located first, then the directory is
// walked to produce entries that can be opened in any order without touching
// the payload bytes in between.
//
// This is the random-access counterpart to
// [github.com/zippkg/zipp/scan], which reads local headers front to back and
// never sees the directory.
package cd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/extra"
	"github.com/zippkg/zipp/zipenc"
)

// Options customises how the central directory is scanned.
type Options struct {
	// Ctx can be given to cancel the scan and any subsequent entry reads.
	Ctx context.Context

	// MaxBytes limits the trailing window searched for the
	// end-of-central-directory record. The zero value searches the full
	// 64 KiB + 22 bytes the format allows; a smaller positive value
	// rejects archives with comments longer than the window.
	MaxBytes int64

	// Encoding is how entry names and comments are decoded. The zero value
	// trusts the per-entry UTF-8 flag and falls back to UTF-8.
	Encoding zipenc.Policy

	// Decompressors overrides or extends the registered decompressors for
	// this scan only.
	Decompressors map[uint16]zipp.Decompressor
}

// WithContext returns an option setting [Options.Ctx].
func WithContext(ctx context.Context) func(*Options) {
	return func(opts *Options) {
		opts.Ctx = ctx
	}
}

// WithEncoding returns an option setting [Options.Encoding].
func WithEncoding(p zipenc.Policy) func(*Options) {
	return func(opts *Options) {
		opts.Encoding = p
	}
}

// Scan scans backwards from the given io.ReadSeeker for the central directory
// file headers.
//
// Returns the end-of-central-directory (EOCD) record, an iterator over the
// directory's entries, and any error from searching for and parsing the EOCD.
//
// Entries may be opened while iterating, but src has a single read position:
// neither the iterator nor the entries it has produced may be used
// concurrently. Use ScanFromReaderAt when concurrent reads are needed. If src
// implements io.Closer it must remain open for all subsequent reads.
//
// A directory whose entry count cannot be satisfied because the input ends
// early yields every entry that was recovered, then yields a
// [zipp.TruncatedDirectoryError] carrying the expected and recovered counts.
func Scan(src io.ReadSeeker, optFns ...func(*Options)) (EOCDRecord, iter.Seq2[*Entry, error], error) {
	opts := newOptions(optFns)

	r, err := findEOCD(src, opts)
	if err != nil {
		return r, nil, err
	}

	return r, scanEntries(&seekerSource{rs: src}, r, opts), nil
}

// ScanFromReaderAt scans backwards from the given io.ReaderAt and size for the
// central directory file headers.
//
// Returns the end-of-central-directory (EOCD) record, an iterator over the
// directory's entries, and any error from searching for and parsing the EOCD.
//
// Entries produced by this variant read through io.ReaderAt and can be opened
// concurrently with one another and with the iteration. If src implements
// io.Closer it must remain open for all subsequent reads.
func ScanFromReaderAt(src io.ReaderAt, size int64, optFns ...func(*Options)) (EOCDRecord, iter.Seq2[*Entry, error], error) {
	opts := newOptions(optFns)

	r, err := findEOCD(io.NewSectionReader(src, 0, size), opts)
	if err != nil {
		return r, nil, err
	}

	return r, scanEntries(&readerAtSource{ra: src}, r, opts), nil
}

func newOptions(optFns []func(*Options)) *Options {
	opts := &Options{Ctx: context.Background()}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	return opts
}

func (o *Options) decompressor(method uint16) (zipp.Decompressor, bool) {
	if d, ok := o.Decompressors[method]; ok {
		return d, true
	}
	return zipp.NewDecompressor(method)
}

// source abstracts the two read mediums. readAt fills p entirely or fails;
// section returns a reader over [off, off+n).
type source interface {
	readAt(p []byte, off int64) error
	section(off, n int64) io.Reader
}

type readerAtSource struct {
	ra io.ReaderAt
}

func (s *readerAtSource) readAt(p []byte, off int64) error {
	n, err := s.ra.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *readerAtSource) section(off, n int64) io.Reader {
	return io.NewSectionReader(s.ra, off, n)
}

// seekerSource funnels every read through one shared read position, seeking
// before each access so that iteration and entry reads can interleave. Not
// safe for concurrent use.
type seekerSource struct {
	rs io.ReadSeeker
}

func (s *seekerSource) readAt(p []byte, off int64) error {
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(s.rs, p)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *seekerSource) section(off, n int64) io.Reader {
	return &seekingSection{s: s, off: off, n: n}
}

// seekingSection re-seeks on every Read so sections survive interleaved use of
// the shared seeker.
type seekingSection struct {
	s   *seekerSource
	off int64
	n   int64
}

func (r *seekingSection) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.n {
		p = p[:r.n]
	}
	if _, err := r.s.rs.Seek(r.off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := r.s.rs.Read(p)
	r.off += int64(n)
	r.n -= int64(n)
	return n, err
}

// scanEntries walks exactly r.CDCount central directory file headers starting
// at r.CDOffset.
func scanEntries(src source, r EOCDRecord, opts *Options) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		var (
			fixed  = make([]byte, zipp.CentralDirectoryLen)
			offset = int64(r.CDOffset)
		)

		for parsed := uint64(0); parsed < r.CDCount; parsed++ {
			if err := opts.Ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			if err := src.readAt(fixed, offset); err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) {
					yield(nil, &zipp.TruncatedDirectoryError{Expected: r.CDCount, Parsed: parsed})
				} else {
					yield(nil, fmt.Errorf("next CD file header: read error: %w", err))
				}
				return
			}

			e, nmkLen, err := parseFixed(fixed)
			if err != nil {
				// running into a trailing record early means the
				// declared count overshoots the actual directory.
				var sigErr *MalformedSignatureError
				if errors.As(err, &sigErr) && isTrailingRecord(fixed) {
					yield(nil, &zipp.TruncatedDirectoryError{Expected: r.CDCount, Parsed: parsed})
				} else {
					yield(nil, err)
				}
				return
			}
			offset += zipp.CentralDirectoryLen

			bb := bytebufferpool.Get()
			if cap(bb.B) < nmkLen {
				bb.B = make([]byte, nmkLen)
			}
			bb.B = bb.B[:nmkLen]
			if err = src.readAt(bb.B, offset); err != nil {
				bytebufferpool.Put(bb)
				if errors.Is(err, io.ErrUnexpectedEOF) {
					yield(nil, &zipp.TruncatedDirectoryError{Expected: r.CDCount, Parsed: parsed})
				} else {
					yield(nil, fmt.Errorf("next CD file header: read variable-size data error: %w", err))
				}
				return
			}
			offset += int64(nmkLen)

			err = e.finish(bb.B, opts)
			bytebufferpool.Put(bb)
			if err != nil {
				yield(nil, err)
				return
			}

			e.src, e.opts = src, opts
			if !yield(e, nil) {
				return
			}
		}
	}
}

// isTrailingRecord reports whether b starts one of the records that follow the
// last central directory file header.
func isTrailingRecord(b []byte) bool {
	sig := binary.LittleEndian.Uint32(b)
	return sig == zipp.SigEOCD || sig == zipp.SigZip64EOCD || sig == zipp.SigZip64EOCDLocator
}

// parseFixed decodes the 46-byte fixed part of a central directory file
// header, returning the partially built entry and the combined length of the
// name, extra and comment that follow.
func parseFixed(fixed []byte) (*Entry, int, error) {
	b := zipp.ReadBuf(fixed)
	if b.Uint32() != zipp.SigCentralDirectory {
		return nil, 0, &MalformedSignatureError{Record: "central directory file header"}
	}

	e := &Entry{}
	e.CreatorVersion = b.Uint16()
	e.ReaderVersion = b.Uint16()
	e.Flags = b.Uint16()
	e.Method = b.Uint16()
	e.ModifiedTime = b.Uint16()
	e.ModifiedDate = b.Uint16()
	e.CRC32 = b.Uint32()
	e.CompressedSize64 = uint64(b.Uint32())
	e.UncompressedSize64 = uint64(b.Uint32())
	n := int(b.Uint16())
	m := int(b.Uint16())
	k := int(b.Uint16())
	e.DiskNumber = uint32(b.Uint16())
	e.InternalAttrs = b.Uint16()
	e.ExternalAttrs = b.Uint32()
	e.Offset = uint64(b.Uint32())

	e.Modified = zipp.MSDosTimeToTime(e.ModifiedDate, e.ModifiedTime)

	e.nameLen, e.extraLen = n, m
	return e, n + m + k, nil
}

// finish consumes the name, extra-field and comment bytes of the header,
// resolves the ZIP64 extension against the fixed part's sentinels, and decodes
// the textual fields.
func (e *Entry) finish(nmk []byte, opts *Options) error {
	n, m := e.nameLen, e.extraLen
	rawName := nmk[:n]
	e.Extra = append([]byte(nil), nmk[n:n+m]...)
	rawComment := nmk[n+m:]

	e.Fields = extra.Parse(e.Extra)

	needUSize := e.UncompressedSize64 == zipp.Max32
	needCSize := e.CompressedSize64 == zipp.Max32
	needOffset := e.Offset == zipp.Max32
	needDisk := e.DiskNumber == zipp.Max16
	if z := e.Fields.Zip64(); z != nil && (needUSize || needCSize || needOffset || needDisk) {
		if err := z.Resolve(needUSize, needCSize, needOffset, needDisk); err != nil {
			return fmt.Errorf("entry at offset %d: %w", e.Offset, err)
		}
		if z.HasUncompressedSize {
			e.UncompressedSize64 = z.UncompressedSize
		}
		if z.HasCompressedSize {
			e.CompressedSize64 = z.CompressedSize
		}
		if z.HasOffset {
			e.Offset = z.Offset
		}
		if z.HasDiskNumber {
			e.DiskNumber = z.DiskNumber
		}
	}

	if ts := e.Fields.Timestamp(); ts != nil && ts.HasModTime {
		e.Modified = ts.ModTime
	}

	utf8Flag := e.IsUTF8()
	e.Name = decodeText(opts.Encoding, rawName, utf8Flag, e.Fields.UnicodePath())
	if e.Name != string(rawName) {
		e.RawName = append([]byte(nil), rawName...)
	}
	if len(rawComment) > 0 {
		e.Comment = decodeText(opts.Encoding, rawComment, utf8Flag, e.Fields.UnicodeComment())
		if e.Comment != string(rawComment) {
			e.RawComment = append([]byte(nil), rawComment...)
		}
	}

	e.NonUTF8 = !utf8Flag && (!utf8.Valid(rawName) || !utf8.Valid(rawComment))
	return nil
}

// decodeText decodes one textual field, preferring a Unicode shadow extra
// field whose CRC-32 binds it to these exact raw bytes.
func decodeText(p zipenc.Policy, raw []byte, utf8Flag bool, shadow *extra.Unicode) string {
	if shadow != nil {
		if s, ok := shadow.TextIfMatches(raw); ok {
			return s
		}
	}
	return p.DecodeText(raw, utf8Flag)
}
