package zipp

import "encoding/binary"

// ReadBuf is a little-endian cursor over a byte slice. Callers are expected
// to have checked the slice length up front (typically via [Take]); the
// fixed-width accessors advance the cursor and assume enough bytes remain.
//
// All size, offset and count fields are widened to unsigned 64-bit values as
// soon as they are read, regardless of their 2- or 4-byte on-disk width:
// legitimate entry counts and offsets can exceed 2^31, so nothing in this
// codec compares them as signed. The single exception is signature matching,
// where a 32-bit field is compared against an explicit magic constant.
type ReadBuf []byte

func (b *ReadBuf) Uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *ReadBuf) Uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *ReadBuf) Uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *ReadBuf) Uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

// Skip advances the cursor by n bytes.
func (b *ReadBuf) Skip(n int) {
	*b = (*b)[n:]
}

// Sub carves off the next n bytes as an independent cursor.
func (b *ReadBuf) Sub(n int) ReadBuf {
	v := ReadBuf((*b)[:n])
	*b = (*b)[n:]
	return v
}

// Take validates that record (of which n bytes are required) has enough bytes
// left in b, returning a MalformedRecordError otherwise.
func (b ReadBuf) Take(record string, n int) error {
	if len(b) < n {
		return &MalformedRecordError{Record: record, Need: n, Got: len(b)}
	}
	return nil
}

// WriteBuf is the writing counterpart of ReadBuf: a little-endian cursor over
// a pre-sized byte slice.
type WriteBuf []byte

func (b *WriteBuf) Uint8(v uint8) {
	(*b)[0] = v
	*b = (*b)[1:]
}

func (b *WriteBuf) Uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *WriteBuf) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *WriteBuf) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}

// Cap32 narrows a 64-bit value to a 32-bit on-disk field, substituting the
// sentinel when the value needs the ZIP64 extension.
func Cap32(v uint64) uint32 {
	if v >= Max32 {
		return Max32
	}
	return uint32(v)
}

// Cap16 narrows a count to a 16-bit on-disk field, substituting the sentinel
// when the value needs the ZIP64 end-of-directory record.
func Cap16(v uint64) uint16 {
	if v >= Max16 {
		return Max16
	}
	return uint16(v)
}

// AppendUint32 appends v in little-endian order; used for signatures written
// outside a pre-sized buffer.
func AppendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
