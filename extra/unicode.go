package extra

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Unicode is an Info-ZIP Unicode path (tag 0x7075) or comment (tag 0x6375)
// shadow field: a version byte, a CRC-32 of the byte-encoded primary
// name/comment it replaces, and the UTF-8 bytes of the true text.
//
// The CRC binds the shadow to a specific primary value. Consumers must call
// [Unicode.TextIfMatches] with the primary's current raw bytes; a stale or
// mismatching shadow must be ignored in favour of the primary.
type Unicode struct {
	// ID is UnicodePathTag or UnicodeCommentTag.
	ID uint16
	// Version of the field; only version 1 is defined.
	Version uint8
	// NameCRC32 is the CRC-32 of the primary field's encoded bytes.
	NameCRC32 uint32
	// UTF8 is the true text in UTF-8.
	UTF8 []byte
}

// NewUnicodePath returns a path shadow field binding name to the primary
// bytes raw as stored in the archive.
func NewUnicodePath(name string, raw []byte) *Unicode {
	return &Unicode{ID: UnicodePathTag, Version: 1, NameCRC32: crc32.ChecksumIEEE(raw), UTF8: []byte(name)}
}

// NewUnicodeComment is NewUnicodePath for the comment field.
func NewUnicodeComment(comment string, raw []byte) *Unicode {
	return &Unicode{ID: UnicodeCommentTag, Version: 1, NameCRC32: crc32.ChecksumIEEE(raw), UTF8: []byte(comment)}
}

func parseUnicode(tag uint16, data []byte) (Field, error) {
	if len(data) < 5 {
		return nil, errors.New("missing version/crc32 prefix")
	}

	return &Unicode{
		ID:        tag,
		Version:   data[0],
		NameCRC32: binary.LittleEndian.Uint32(data[1:5]),
		UTF8:      append([]byte(nil), data[5:]...),
	}, nil
}

func (f *Unicode) Tag() uint16 {
	return f.ID
}

func (f *Unicode) AppendData(b []byte, _ Header) []byte {
	b = append(b, f.Version)
	b = binary.LittleEndian.AppendUint32(b, f.NameCRC32)
	return append(b, f.UTF8...)
}

// TextIfMatches returns the shadow text if the field is version 1 and its
// CRC-32 matches the primary field's raw bytes. Otherwise the primary value
// must be used.
func (f *Unicode) TextIfMatches(raw []byte) (string, bool) {
	if f.Version != 1 || crc32.ChecksumIEEE(raw) != f.NameCRC32 {
		return "", false
	}
	return string(f.UTF8), true
}
