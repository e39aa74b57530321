package scan

import (
	"bytes"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/zippkg/zipp"
)

var sigDD = zipp.AppendUint32(nil, zipp.SigDataDescriptor)

// descriptorReader delivers the raw payload of a streaming entry whose length
// is unknown: the stream is searched for a data descriptor whose recorded
// compressed size equals the number of payload bytes consumed so far.
//
// The descriptor signature is just bytes and can legitimately occur inside a
// payload, so every candidate is validated: its compressed-size field must
// equal the payload length up to the candidate, in whichever of the 32- and
// 64-bit layouts the entry's ZIP64 bookkeeping suggests, and where visible
// the bytes after the candidate must start the next record. Candidates
// failing validation are payload.
type descriptorReader struct {
	r         *Reader
	fh        *zipp.FileHeader
	zip64Hint bool

	consumed int64
	done     bool
	err      error
}

func (d *descriptorReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if m := d.r.opts.MaxDescriptorScan; m >= 0 && d.consumed > m {
		d.err = &zipp.DescriptorMismatchError{Scanned: d.consumed}
		return 0, d.err
	}

	want := len(p) + zipp.DataDescriptor64Len + 4
	if max := d.r.br.Size(); want > max {
		want = max
	}
	data, perr := d.r.br.Peek(want)
	atEOF := perr != nil
	if len(data) == 0 {
		d.err = &zipp.DescriptorMismatchError{Scanned: d.consumed}
		return 0, d.err
	}

	// emit runs up to len(data) payload bytes; a validated descriptor at
	// the current position ends the entry instead.
	emit := len(data)
	for i := 0; ; {
		j := bytes.Index(data[i:], sigDD)
		if j < 0 {
			if !atEOF {
				// a signature could straddle the window edge.
				emit = len(data) - 3
			}
			break
		}
		i += j

		if !atEOF && len(data)-i < zipp.DataDescriptor64Len+4 {
			// candidate not fully visible yet; deliver up to it and
			// revisit with a fresh window.
			emit = i
			break
		}

		if n, ok := d.validate(data[i:], int64(i), atEOF); ok {
			if i > 0 {
				emit = i
				break
			}
			if err := d.r.discard(n); err != nil {
				d.err = err
				return 0, err
			}
			d.done = true
			return 0, io.EOF
		}

		// false positive; the signature bytes are payload.
		i++
	}

	if emit <= 0 {
		if atEOF {
			d.err = &zipp.DescriptorMismatchError{Scanned: d.consumed}
			return 0, d.err
		}
		return 0, nil
	}
	if emit > len(p) {
		emit = len(p)
	}
	copy(p, data[:emit])
	if err := d.r.discard(emit); err != nil {
		d.err = err
		return 0, err
	}
	d.consumed += int64(emit)
	return emit, nil
}

// validate checks one candidate starting with the descriptor signature,
// returning the descriptor's total length on success and recording the
// descriptor's values into the header. ahead is how many payload bytes of the
// current window precede the candidate; they have not been counted into
// consumed yet.
func (d *descriptorReader) validate(cand []byte, ahead int64, atEOF bool) (int, bool) {
	csize := d.consumed + ahead
	try64 := func() (int, bool) {
		if len(cand) < zipp.DataDescriptor64Len {
			return 0, false
		}
		if int64(binary.LittleEndian.Uint64(cand[8:])) != csize {
			return 0, false
		}
		if !d.nextRecordPlausible(cand[zipp.DataDescriptor64Len:], atEOF) {
			return 0, false
		}
		d.fh.CRC32 = binary.LittleEndian.Uint32(cand[4:])
		d.fh.CompressedSize64 = binary.LittleEndian.Uint64(cand[8:])
		d.fh.UncompressedSize64 = binary.LittleEndian.Uint64(cand[16:])
		return zipp.DataDescriptor64Len, true
	}
	try32 := func() (int, bool) {
		if len(cand) < zipp.DataDescriptorLen || csize > int64(zipp.Max32) {
			return 0, false
		}
		if int64(binary.LittleEndian.Uint32(cand[8:])) != csize {
			return 0, false
		}
		if !d.nextRecordPlausible(cand[zipp.DataDescriptorLen:], atEOF) {
			return 0, false
		}
		d.fh.CRC32 = binary.LittleEndian.Uint32(cand[4:])
		d.fh.CompressedSize64 = uint64(binary.LittleEndian.Uint32(cand[8:]))
		d.fh.UncompressedSize64 = uint64(binary.LittleEndian.Uint32(cand[12:]))
		return zipp.DataDescriptorLen, true
	}

	if d.zip64Hint {
		if n, ok := try64(); ok {
			return n, ok
		}
		return try32()
	}
	if n, ok := try32(); ok {
		return n, ok
	}
	return try64()
}

// nextRecordPlausible reports whether the bytes following a descriptor
// candidate could start the next record. With fewer than 4 bytes visible no
// judgement is possible and the candidate stands.
func (d *descriptorReader) nextRecordPlausible(b []byte, atEOF bool) bool {
	if len(b) < 4 {
		return atEOF && len(b) == 0
	}
	switch binary.LittleEndian.Uint32(b) {
	case zipp.SigLocalFileHeader, zipp.SigCentralDirectory, zipp.SigEOCD, zipp.SigZip64EOCD, zipp.SigZip64EOCDLocator:
		return true
	}
	return false
}

func (d *descriptorReader) Drain() error {
	buf := make([]byte, 32*1024)
	for {
		if _, err := d.Read(buf); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// sizedReader delivers a payload of known compressed length, consuming the
// trailing data descriptor afterwards when the entry declared one.
type sizedReader struct {
	r          *Reader
	fh         *zipp.FileHeader
	remaining  int64
	descriptor bool
	zip64Hint  bool

	done bool
	err  error
}

func (s *sizedReader) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.remaining <= 0 {
		if err := s.finish(); err != nil {
			s.err = err
			return 0, err
		}
		return 0, io.EOF
	}

	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	n, err := s.r.read(p)
	s.remaining -= int64(n)
	if err == io.EOF && s.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// finish consumes the data descriptor once the payload is exhausted. The
// record's sizes must agree with the known ones; the signature is optional on
// disk.
func (s *sizedReader) finish() error {
	if s.done {
		return nil
	}
	s.done = true
	if !s.descriptor {
		return nil
	}

	data, _ := s.r.br.Peek(zipp.DataDescriptor64Len)
	sigLen := 0
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == zipp.SigDataDescriptor {
		sigLen = 4
	}
	body := data[sigLen:]

	check64 := func() bool {
		return len(body) >= 20 &&
			binary.LittleEndian.Uint64(body[4:]) == s.fh.CompressedSize64 &&
			binary.LittleEndian.Uint64(body[12:]) == s.fh.UncompressedSize64
	}
	check32 := func() bool {
		return len(body) >= 12 &&
			uint64(binary.LittleEndian.Uint32(body[4:])) == s.fh.CompressedSize64&zipp.Max32 &&
			uint64(binary.LittleEndian.Uint32(body[8:])) == s.fh.UncompressedSize64&zipp.Max32
	}

	var bodyLen int
	switch {
	case s.zip64Hint && check64(), !s.zip64Hint && !check32() && check64():
		bodyLen = 20
	case check32():
		bodyLen = 12
	default:
		return &zipp.MalformedRecordError{Record: "data descriptor"}
	}

	if s.fh.CRC32 == 0 {
		s.fh.CRC32 = binary.LittleEndian.Uint32(body)
	}
	return s.r.discard(sigLen + bodyLen)
}

func (s *sizedReader) Drain() error {
	for s.remaining > 0 {
		n := s.remaining
		if n > 1<<30 {
			n = 1 << 30
		}
		if err := s.r.discard(int(n)); err != nil {
			s.err = err
			return err
		}
		s.remaining -= n
	}
	if err := s.finish(); err != nil {
		s.err = err
		return err
	}
	return nil
}

// entryStream is the decompressed view of the current entry. The Read that
// observes the decompressor's EOF drains the raw side, so the descriptor has
// been consumed and the header's CRC32 is final before verification.
type entryStream struct {
	dec io.ReadCloser
	raw drainReader
	fh  *zipp.FileHeader

	hash hash.Hash32
	err  error
}

func (s *entryStream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.hash == nil {
		s.hash = crc32.NewIEEE()
	}

	n, err := s.dec.Read(p)
	s.hash.Write(p[:n])
	if err == io.EOF {
		s.err = io.EOF
		if derr := s.raw.Drain(); derr != nil {
			s.err = derr
			return n, derr
		}
		_ = s.dec.Close()
		if s.hash.Sum32() != s.fh.CRC32 {
			s.err = zipp.ErrChecksum
			return n, zipp.ErrChecksum
		}
	} else if err != nil {
		s.err = err
	}
	return n, err
}
