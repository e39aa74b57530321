package zipw

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/extra"
)

// fileWriter is the io.Writer handed out for one open entry.
type fileWriter struct {
	zw *Writer
	fh *zipp.FileHeader

	fields        extra.Fields // chain without the ZIP64 record
	rawName       []byte
	rawComment    []byte
	shadowComment bool

	raw       bool // payload arrives pre-compressed
	streaming bool // descriptor mode
	zip64     bool // local header promoted

	// patchPos is the destination position of the local header's CRC32
	// field, zip64Pos that of the reserved ZIP64 payload; -1 when the
	// header is final as written.
	patchPos int64
	zip64Pos int64

	comp         io.WriteCloser
	crc          hash.Hash32
	dataStart    uint64
	uncompressed uint64
	closed       bool
}

func (w *Writer) newFileWriter(fh *zipp.FileHeader, raw bool) (*fileWriter, error) {
	f := &fileWriter{zw: w, fh: fh, raw: raw, patchPos: -1, zip64Pos: -1}

	rawName, utf8Flag, shadowName := w.opts.Encoding.EncodeText(fh.Name)
	if len(rawName) > zipp.Max16 {
		return nil, fmt.Errorf("entry name is %d bytes encoded; max %d", len(rawName), zipp.Max16)
	}
	f.rawName = rawName

	if fh.Comment != "" {
		f.rawComment, _, f.shadowComment = w.opts.Encoding.EncodeText(fh.Comment)
		if len(f.rawComment) > zipp.Max16 {
			return nil, fmt.Errorf("entry comment is %d bytes encoded; max %d", len(f.rawComment), zipp.Max16)
		}
	}

	if utf8Flag {
		fh.Flags |= zipp.FlagUTF8
	} else {
		fh.Flags &^= zipp.FlagUTF8
	}

	f.fields = extra.Parse(fh.Extra).Without(extra.Zip64Tag)
	if !fh.Modified.IsZero() {
		fh.ModifiedDate, fh.ModifiedTime = zipp.TimeToMSDosTime(fh.Modified)
		if f.fields.Timestamp() == nil {
			f.fields = append(f.fields, extra.NewExtendedTimestamp(fh.Modified))
		}
	}
	if shadowName {
		f.fields = append(f.fields, extra.NewUnicodePath(fh.Name, rawName))
	}

	sizesKnown := raw
	f.streaming = w.ws == nil && !sizesKnown

	needNow := sizesKnown &&
		(fh.CompressedSize64 >= zipp.Max32 || fh.UncompressedSize64 >= zipp.Max32)
	switch w.opts.Zip64 {
	case Zip64Never:
		if needNow {
			return nil, fmt.Errorf("entry %s: %w", fh.Name, ErrZip64Required)
		}
	case Zip64Always:
		f.zip64 = true
	case Zip64AsNeeded:
		// a seekable entry of unknown size reserves the extension so the
		// patch never runs out of room; the directory entry stays 32-bit
		// if the sizes allow.
		f.zip64 = needNow ||
			(!sizesKnown && fh.UncompressedSize64 >= zipp.Max32) ||
			(w.ws != nil && !sizesKnown)
	}

	if f.streaming {
		fh.Flags |= zipp.FlagDataDescriptor
	} else {
		fh.Flags &^= zipp.FlagDataDescriptor
	}

	if fh.ReaderVersion < zipp.VersionDefault {
		fh.ReaderVersion = zipp.VersionDefault
	}
	if f.zip64 && fh.ReaderVersion < zipp.VersionZip64 {
		fh.ReaderVersion = zipp.VersionZip64
	}

	if !raw {
		comp, ok := w.compressor(fh.Method)
		if !ok {
			return nil, fmt.Errorf("entry %s: %s: %w", fh.Name, zipp.MethodName(fh.Method), zipp.ErrMethod)
		}
		var err error
		if f.comp, err = comp(w.cw); err != nil {
			return nil, fmt.Errorf("entry %s: new compressor error: %w", fh.Name, err)
		}
		f.crc = crc32.NewIEEE()
	}

	fh.Offset = w.cw.n
	if err := f.writeLocalHeader(sizesKnown); err != nil {
		return nil, err
	}
	f.dataStart = w.cw.n

	return f, nil
}

// writeLocalHeader serializes the 30-byte header plus name and extra chain.
// Unknown sizes are written as zero (or as sentinels backed by a zeroed ZIP64
// record when the entry is promoted) and later finalised by a data descriptor
// or an in-place patch.
func (f *fileWriter) writeLocalHeader(sizesKnown bool) error {
	fh := f.fh

	var crc, cs32, us32 uint32
	local := f.fields
	if sizesKnown {
		crc, cs32, us32 = fh.CRC32, zipp.Cap32(fh.CompressedSize64), zipp.Cap32(fh.UncompressedSize64)
		if f.zip64 {
			cs32, us32 = zipp.Max32, zipp.Max32
			local = append(local.Without(extra.Zip64Tag), &extra.Zip64{
				UncompressedSize:    fh.UncompressedSize64,
				CompressedSize:      fh.CompressedSize64,
				HasUncompressedSize: true,
				HasCompressedSize:   true,
			})
		}
	} else if f.zip64 {
		cs32, us32 = zipp.Max32, zipp.Max32
		local = append(local.Without(extra.Zip64Tag), &extra.Zip64{
			HasUncompressedSize: true,
			HasCompressedSize:   true,
		})
	}

	extraBytes := local.Append(nil, extra.LocalHeader)
	if len(extraBytes) > zipp.Max16 {
		return fmt.Errorf("entry %s: extra fields are %d bytes; max %d", fh.Name, len(extraBytes), zipp.Max16)
	}

	if f.zw.ws != nil && !sizesKnown {
		f.patchPos = f.zw.base + int64(fh.Offset) + 14
		if f.zip64 {
			// the reserved record was appended last; its payload
			// starts after the other fields' bytes plus its own
			// tag/length prefix.
			baseLen := f.fields.EncodedLen(extra.LocalHeader)
			f.zip64Pos = f.zw.base + int64(fh.Offset) + zipp.LocalFileHeaderLen +
				int64(len(f.rawName)) + int64(baseLen) + 4
		}
	}

	buf := make([]byte, zipp.LocalFileHeaderLen)
	b := zipp.WriteBuf(buf)
	b.Uint32(zipp.SigLocalFileHeader)
	b.Uint16(fh.ReaderVersion)
	b.Uint16(fh.Flags)
	b.Uint16(fh.Method)
	b.Uint16(fh.ModifiedTime)
	b.Uint16(fh.ModifiedDate)
	b.Uint32(crc)
	b.Uint32(cs32)
	b.Uint32(us32)
	b.Uint16(uint16(len(f.rawName)))
	b.Uint16(uint16(len(extraBytes)))

	for _, p := range [][]byte{buf, f.rawName, extraBytes} {
		if _, err := f.zw.cw.Write(p); err != nil {
			return fmt.Errorf("write local file header error: %w", err)
		}
	}
	return nil
}

func (f *fileWriter) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("entry already closed")
	}
	if f.fh.IsDir() && len(p) > 0 {
		return 0, errors.New("directory entries cannot have payload")
	}

	if f.raw {
		return f.zw.cw.Write(p)
	}

	f.crc.Write(p)
	f.uncompressed += uint64(len(p))
	return f.comp.Write(p)
}

func (f *fileWriter) close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	fh := f.fh
	if f.comp != nil {
		if err := f.comp.Close(); err != nil {
			return fmt.Errorf("entry %s: flush compressor error: %w", fh.Name, err)
		}
	}

	csize := f.zw.cw.n - f.dataStart
	if f.raw {
		if csize != fh.CompressedSize64 {
			return fmt.Errorf("entry %s: raw payload is %d bytes, header declared %d", fh.Name, csize, fh.CompressedSize64)
		}
	} else {
		fh.CompressedSize64 = csize
		fh.UncompressedSize64 = f.uncompressed
		fh.CRC32 = f.crc.Sum32()
	}

	if !f.zip64 && (fh.CompressedSize64 >= zipp.Max32 || fh.UncompressedSize64 >= zipp.Max32) {
		return fmt.Errorf("entry %s: %w", fh.Name, ErrZip64Required)
	}

	if f.streaming {
		if err := f.writeDescriptor(); err != nil {
			return err
		}
	} else if f.patchPos >= 0 {
		if err := f.patchHeader(); err != nil {
			return err
		}
	}

	hdr := *fh
	hdr.RawName = f.rawName
	hdr.RawComment = f.rawComment
	fields := f.fields
	if f.shadowComment {
		fields = append(fields, extra.NewUnicodeComment(fh.Comment, f.rawComment))
	}
	f.zw.entries = append(f.zw.entries, &centralEntry{fh: hdr, fields: fields})
	return nil
}

// writeDescriptor emits the data descriptor, signature included, sized to
// match the local header's promotion so readers agree on its layout.
func (f *fileWriter) writeDescriptor() error {
	fh := f.fh

	n := zipp.DataDescriptorLen
	if f.zip64 {
		n = zipp.DataDescriptor64Len
	}
	buf := make([]byte, n)
	b := zipp.WriteBuf(buf)
	b.Uint32(zipp.SigDataDescriptor)
	b.Uint32(fh.CRC32)
	if f.zip64 {
		b.Uint64(fh.CompressedSize64)
		b.Uint64(fh.UncompressedSize64)
	} else {
		b.Uint32(uint32(fh.CompressedSize64))
		b.Uint32(uint32(fh.UncompressedSize64))
	}

	if _, err := f.zw.cw.Write(buf); err != nil {
		return fmt.Errorf("write data descriptor error: %w", err)
	}
	return nil
}

// patchHeader seeks back to the local header and finalises CRC32 and sizes,
// then restores the write position. Patch writes bypass the archive's byte
// count, which tracks logical length only.
func (f *fileWriter) patchHeader() error {
	fh, ws := f.fh, f.zw.ws

	buf := make([]byte, 12)
	b := zipp.WriteBuf(buf)
	b.Uint32(fh.CRC32)
	if f.zip64 {
		b.Uint32(zipp.Max32)
		b.Uint32(zipp.Max32)
	} else {
		b.Uint32(uint32(fh.CompressedSize64))
		b.Uint32(uint32(fh.UncompressedSize64))
	}

	if _, err := ws.Seek(f.patchPos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to local file header error: %w", err)
	}
	if _, err := ws.Write(buf); err != nil {
		return fmt.Errorf("patch local file header error: %w", err)
	}

	if f.zip64 {
		buf = make([]byte, 16)
		b = zipp.WriteBuf(buf)
		b.Uint64(fh.UncompressedSize64)
		b.Uint64(fh.CompressedSize64)
		if _, err := ws.Seek(f.zip64Pos, io.SeekStart); err != nil {
			return fmt.Errorf("seek to reserved ZIP64 field error: %w", err)
		}
		if _, err := ws.Write(buf); err != nil {
			return fmt.Errorf("patch reserved ZIP64 field error: %w", err)
		}
	}

	if _, err := ws.Seek(f.zw.base+int64(f.zw.cw.n), io.SeekStart); err != nil {
		return fmt.Errorf("restore write position error: %w", err)
	}
	return nil
}
