package extra

import "encoding/binary"

// Zip64 is the 64-bit size/offset extension (tag 0x0001).
//
// The payload carries, in a fixed order, only the subset of {uncompressed
// size, compressed size, local-header offset, disk number} whose 32-bit (or
// 16-bit, for the disk number) source fields hold their sentinel value. The
// payload is not self-describing: which fields are present can only be known
// by consulting the file header's sentinels, so a freshly parsed Zip64 holds
// raw bytes until [Zip64.Resolve] is called with that knowledge.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#ZIP64.
type Zip64 struct {
	UncompressedSize uint64
	CompressedSize   uint64
	Offset           uint64
	DiskNumber       uint32

	HasUncompressedSize bool
	HasCompressedSize   bool
	HasOffset           bool
	HasDiskNumber       bool

	raw []byte
}

func parseZip64(_ uint16, data []byte) (Field, error) {
	return &Zip64{raw: append([]byte(nil), data...)}, nil
}

func (f *Zip64) Tag() uint16 {
	return Zip64Tag
}

// AppendData re-emits the original payload verbatim when the field came from
// Parse and has not been resolved or rebuilt; otherwise it writes the present
// fields in the fixed uncompressed-size, compressed-size, offset, disk order.
func (f *Zip64) AppendData(b []byte, _ Header) []byte {
	if f.raw != nil {
		return append(b, f.raw...)
	}

	if f.HasUncompressedSize {
		b = binary.LittleEndian.AppendUint64(b, f.UncompressedSize)
	}
	if f.HasCompressedSize {
		b = binary.LittleEndian.AppendUint64(b, f.CompressedSize)
	}
	if f.HasOffset {
		b = binary.LittleEndian.AppendUint64(b, f.Offset)
	}
	if f.HasDiskNumber {
		b = binary.LittleEndian.AppendUint32(b, f.DiskNumber)
	}
	return b
}

// Resolve decodes the payload given which source fields of the file header
// were sentineled. The sentinel detection order must match the fixed field
// order on both read and write paths; Resolve consumes 8 bytes per requested
// 64-bit field (4 for the disk number) in that order.
//
// Returns an UnsupportedFieldError if the payload is too short for the
// requested set: the bookkeeping is inconsistent and none of the values can
// be trusted.
func (f *Zip64) Resolve(needUncompressedSize, needCompressedSize, needOffset, needDiskNumber bool) error {
	b := f.raw
	take64 := func() (uint64, bool) {
		if len(b) < 8 {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(b)
		b = b[8:]
		return v, true
	}

	var ok bool
	if needUncompressedSize {
		if f.UncompressedSize, ok = take64(); !ok {
			return f.inconsistent()
		}
		f.HasUncompressedSize = true
	}
	if needCompressedSize {
		if f.CompressedSize, ok = take64(); !ok {
			return f.inconsistent()
		}
		f.HasCompressedSize = true
	}
	if needOffset {
		if f.Offset, ok = take64(); !ok {
			return f.inconsistent()
		}
		f.HasOffset = true
	}
	if needDiskNumber {
		if len(b) < 4 {
			return f.inconsistent()
		}
		f.DiskNumber = binary.LittleEndian.Uint32(b)
		f.HasDiskNumber = true
	}

	return nil
}

func (f *Zip64) inconsistent() error {
	return &UnsupportedFieldError{
		Tag:    Zip64Tag,
		Reason: "payload shorter than the sentineled fields it must cover",
	}
}
