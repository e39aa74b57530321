package cd

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/zippkg/zipp"
)

// EOCDRecord is the end-of-central-directory record with every field already
// widened and, where the 32-bit record carried sentinels, superseded by the
// ZIP64 end-of-central-directory record.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is the number of this disk; always 0 in this codec.
	DiskNumber uint32
	// CDDiskNumber is the disk where the central directory starts.
	CDDiskNumber uint32
	// CDCountOnDisk is the number of central directory records on this
	// disk.
	CDCountOnDisk uint64
	// CDCount is the total number of central directory records.
	CDCount uint64
	// CDSize is the size in bytes of the central directory.
	CDSize uint64
	// CDOffset is the offset of the central directory relative to the
	// start of the archive.
	CDOffset uint64
	// Comment is the trailing archive comment, raw.
	Comment []byte
	// Zip64 reports that a ZIP64 end-of-central-directory record was
	// found and its values used.
	Zip64 bool
}

// findEOCD scans src backwards from the end for the end-of-directory magic.
//
// The record may be followed by up to 64 KiB of comment, so up to
// 64 KiB + 22 trailing bytes are searched (less if Options.MaxBytes narrows
// the window) before zipp.ErrNotAnArchive is declared.
func findEOCD(src io.ReadSeeker, opts *Options) (r EOCDRecord, err error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return r, fmt.Errorf("find EOCD: seek to end error: %w", err)
	}
	if size < zipp.EOCDLen {
		return r, zipp.ErrNotAnArchive
	}

	window := int64(zipp.EOCDLen + zipp.Max16)
	if opts.MaxBytes > 0 && opts.MaxBytes < window {
		window = opts.MaxBytes
	}
	if window > size {
		window = size
	}

	start := size - window
	if _, err = src.Seek(start, io.SeekStart); err != nil {
		return r, fmt.Errorf("find EOCD: seek to search window error: %w", err)
	}

	buf := make([]byte, window)
	if _, err = io.ReadFull(src, buf); err != nil {
		return r, fmt.Errorf("find EOCD: read search window error: %w", err)
	}

	// an EOCD-shaped byte pattern can occur inside the comment of the real
	// record, so a candidate only wins if its declared comment runs exactly
	// to the end of the input.
	i := bytes.LastIndex(buf, sigEOCD)
	for i != -1 {
		if r, err = parseEOCD(buf[i:]); err == nil {
			break
		}
		i = bytes.LastIndex(buf[:i], sigEOCD)
	}
	if i == -1 {
		return r, zipp.ErrNotAnArchive
	}

	if !needsZip64(buf[i:]) {
		return r, nil
	}

	// the ZIP64 locator, when present, immediately precedes the EOCD.
	if err = readZip64(src, start+int64(i), &r); err != nil {
		return r, err
	}
	return r, nil
}

// parseEOCD decodes the 22-byte fixed part plus comment at the start of b.
// The declared comment must run exactly to the end of b; a candidate that
// under- or overshoots is an impostor found inside a real record's comment.
func parseEOCD(b zipp.ReadBuf) (r EOCDRecord, err error) {
	if err = b.Take("end of central directory record", zipp.EOCDLen); err != nil {
		return r, err
	}

	if b.Uint32() != zipp.SigEOCD {
		return r, &MalformedSignatureError{Record: "end of central directory record"}
	}

	r = EOCDRecord{
		DiskNumber:    uint32(b.Uint16()),
		CDDiskNumber:  uint32(b.Uint16()),
		CDCountOnDisk: uint64(b.Uint16()),
		CDCount:       uint64(b.Uint16()),
		CDSize:        uint64(b.Uint32()),
		CDOffset:      uint64(b.Uint32()),
	}

	n := int(b.Uint16())
	if n != len(b) {
		return r, &zipp.MalformedRecordError{Record: "end of central directory comment", Need: n, Got: len(b)}
	}
	r.Comment = append([]byte(nil), b.Sub(n)...)
	return r, nil
}

// needsZip64 reports whether any field of the raw EOCD record carries its
// sentinel. Sentinel detection is on the raw fields: a resolved EOCDRecord
// can legitimately hold maximum values.
func needsZip64(b zipp.ReadBuf) bool {
	b.Skip(4)
	diskNumber := b.Uint16()
	cdDiskNumber := b.Uint16()
	countOnDisk := b.Uint16()
	count := b.Uint16()
	cdSize := b.Uint32()
	cdOffset := b.Uint32()
	return diskNumber == zipp.Max16 || cdDiskNumber == zipp.Max16 ||
		countOnDisk == zipp.Max16 || count == zipp.Max16 ||
		cdSize == zipp.Max32 || cdOffset == zipp.Max32
}

// readZip64 locates the ZIP64 end-of-central-directory locator immediately
// before the EOCD record at eocdOffset, follows it to the ZIP64 record, and
// overrides every field the record covers.
//
// A missing locator is tolerated: archives in the wild sometimes sentinel a
// field without writing the extension, and the 32-bit values are the best
// information available then.
func readZip64(src io.ReadSeeker, eocdOffset int64, r *EOCDRecord) error {
	if eocdOffset < zipp.Zip64LocatorLen {
		return nil
	}

	if _, err := src.Seek(eocdOffset-zipp.Zip64LocatorLen, io.SeekStart); err != nil {
		return fmt.Errorf("seek to ZIP64 locator error: %w", err)
	}

	buf := make(zipp.ReadBuf, zipp.Zip64LocatorLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return fmt.Errorf("read ZIP64 locator error: %w", err)
	}

	b := buf
	if b.Uint32() != zipp.SigZip64EOCDLocator {
		return nil
	}
	b.Skip(4) // disk with the start of the ZIP64 EOCD
	recordOffset := b.Uint64()
	// total disk count is 1, or 0 from some Windows tooling; both mean a
	// single-volume archive. Anything else is out of scope.

	if _, err := src.Seek(int64(recordOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to ZIP64 end of central directory record error: %w", err)
	}

	buf = make(zipp.ReadBuf, zipp.Zip64EOCDLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &zipp.MalformedRecordError{Record: "ZIP64 end of central directory record", Err: err}
		}
		return fmt.Errorf("read ZIP64 end of central directory record error: %w", err)
	}

	b = buf
	if b.Uint32() != zipp.SigZip64EOCD {
		return &MalformedSignatureError{Record: "ZIP64 end of central directory record"}
	}
	b.Skip(8) // size of this record
	b.Skip(4) // version made by / version needed
	r.DiskNumber = b.Uint32()
	r.CDDiskNumber = b.Uint32()
	r.CDCountOnDisk = b.Uint64()
	r.CDCount = b.Uint64()
	r.CDSize = b.Uint64()
	r.CDOffset = b.Uint64()
	r.Zip64 = true
	return nil
}

// MalformedSignatureError reports a record whose leading magic number did not
// match.
type MalformedSignatureError struct {
	Record string
}

func (e *MalformedSignatureError) Error() string {
	return fmt.Sprintf("mismatched %s signature", e.Record)
}

var sigEOCD = zipp.AppendUint32(nil, zipp.SigEOCD)
