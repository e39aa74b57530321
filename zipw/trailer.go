package zipw

import (
	"fmt"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/extra"
)

// writeTrailer writes the central directory followed by the end-of-directory
// records, promoting to the ZIP64 variants when a count, size or offset
// outgrows its field.
func (w *Writer) writeTrailer() error {
	cdOffset := w.cw.n
	var entryZip64 bool
	for _, ce := range w.entries {
		promoted, err := w.writeCentralHeader(ce)
		if err != nil {
			return err
		}
		entryZip64 = entryZip64 || promoted
	}
	cdSize := w.cw.n - cdOffset
	count := uint64(len(w.entries))

	needZip64 := entryZip64 || count >= zipp.Max16 || cdSize >= zipp.Max32 || cdOffset >= zipp.Max32
	switch w.opts.Zip64 {
	case Zip64Never:
		if needZip64 {
			return fmt.Errorf("end of central directory: %w", ErrZip64Required)
		}
	case Zip64Always:
		needZip64 = true
	}

	if needZip64 {
		if err := w.writeZip64EOCD(count, cdSize, cdOffset); err != nil {
			return err
		}
	}

	// once the ZIP64 record exists, the legacy fields carry sentinels even
	// when the real values would fit, so readers know to follow the locator.
	cnt16 := zipp.Cap16(count)
	cdSize32, cdOffset32 := zipp.Cap32(cdSize), zipp.Cap32(cdOffset)
	if needZip64 {
		cnt16, cdSize32, cdOffset32 = zipp.Max16, zipp.Max32, zipp.Max32
	}

	buf := make([]byte, zipp.EOCDLen+len(w.comment))
	b := zipp.WriteBuf(buf)
	b.Uint32(zipp.SigEOCD)
	b.Uint16(0) // this disk
	b.Uint16(0) // disk with the central directory
	b.Uint16(cnt16)
	b.Uint16(cnt16)
	b.Uint32(cdSize32)
	b.Uint32(cdOffset32)
	b.Uint16(uint16(len(w.comment)))
	copy(b, w.comment)

	if _, err := w.cw.Write(buf); err != nil {
		return fmt.Errorf("write end of central directory error: %w", err)
	}
	return nil
}

func (w *Writer) writeZip64EOCD(count, cdSize, cdOffset uint64) error {
	recordOffset := w.cw.n

	buf := make([]byte, zipp.Zip64EOCDLen+zipp.Zip64LocatorLen)
	b := zipp.WriteBuf(buf)
	b.Uint32(zipp.SigZip64EOCD)
	b.Uint64(zipp.Zip64EOCDLen - 12) // size of the record below this field
	b.Uint16(zipp.VersionZip64 | zipp.CreatorUnix<<8)
	b.Uint16(zipp.VersionZip64)
	b.Uint32(0) // this disk
	b.Uint32(0) // disk with the central directory
	b.Uint64(count)
	b.Uint64(count)
	b.Uint64(cdSize)
	b.Uint64(cdOffset)

	b.Uint32(zipp.SigZip64EOCDLocator)
	b.Uint32(0) // disk with the ZIP64 end of central directory
	b.Uint64(recordOffset)
	b.Uint32(1) // total disks

	if _, err := w.cw.Write(buf); err != nil {
		return fmt.Errorf("write ZIP64 end of central directory error: %w", err)
	}
	return nil
}

// writeCentralHeader writes one central directory file header, reporting
// whether the entry needed ZIP64 fields.
func (w *Writer) writeCentralHeader(ce *centralEntry) (bool, error) {
	fh := ce.fh

	needCSize := fh.CompressedSize64 >= zipp.Max32
	needUSize := fh.UncompressedSize64 >= zipp.Max32
	needOffset := fh.Offset >= zipp.Max32
	if w.opts.Zip64 == Zip64Always {
		needCSize, needUSize, needOffset = true, true, true
	}

	fields := ce.fields
	if needCSize || needUSize || needOffset {
		// sentinel order in the fixed fields must match the payload's
		// fixed field order for readers to resolve it.
		fields = append(fields, &extra.Zip64{
			UncompressedSize:    fh.UncompressedSize64,
			CompressedSize:      fh.CompressedSize64,
			Offset:              fh.Offset,
			HasUncompressedSize: needUSize,
			HasCompressedSize:   needCSize,
			HasOffset:           needOffset,
		})
		if fh.ReaderVersion < zipp.VersionZip64 {
			fh.ReaderVersion = zipp.VersionZip64
		}
	}

	extraBytes := fields.Append(nil, extra.CentralDirectory)
	if len(extraBytes) > zipp.Max16 {
		return false, fmt.Errorf("entry %s: extra fields are %d bytes; max %d", fh.Name, len(extraBytes), zipp.Max16)
	}

	cs32, us32, off32 := zipp.Cap32(fh.CompressedSize64), zipp.Cap32(fh.UncompressedSize64), zipp.Cap32(fh.Offset)
	if needCSize {
		cs32 = zipp.Max32
	}
	if needUSize {
		us32 = zipp.Max32
	}
	if needOffset {
		off32 = zipp.Max32
	}

	buf := make([]byte, zipp.CentralDirectoryLen)
	b := zipp.WriteBuf(buf)
	b.Uint32(zipp.SigCentralDirectory)
	b.Uint16(fh.CreatorVersion)
	b.Uint16(fh.ReaderVersion)
	b.Uint16(fh.Flags)
	b.Uint16(fh.Method)
	b.Uint16(fh.ModifiedTime)
	b.Uint16(fh.ModifiedDate)
	b.Uint32(fh.CRC32)
	b.Uint32(cs32)
	b.Uint32(us32)
	b.Uint16(uint16(len(fh.RawName)))
	b.Uint16(uint16(len(extraBytes)))
	b.Uint16(uint16(len(fh.RawComment)))
	b.Uint16(uint16(fh.DiskNumber))
	b.Uint16(fh.InternalAttrs)
	b.Uint32(fh.ExternalAttrs)
	b.Uint32(off32)

	for _, p := range [][]byte{buf, fh.RawName, extraBytes, fh.RawComment} {
		if _, err := w.cw.Write(p); err != nil {
			return false, fmt.Errorf("write central directory file header error: %w", err)
		}
	}
	return needCSize || needUSize || needOffset, nil
}
