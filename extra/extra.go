// Package extra models the extensible per-entry metadata chain of ZIP
// archives: an ordered list of typed, length-prefixed sub-records attached to
// a file header.
//
// A dispatch table maps each 16-bit tag to a parser. Unrecognized tags are
// retained as opaque [Unknown] records and re-emitted byte for byte, so that
// future tags survive a read-modify-write cycle untouched.
package extra

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Well-known tags handled by this package.
const (
	// Zip64Tag marks the 64-bit size/offset extension.
	Zip64Tag uint16 = 0x0001
	// ExtendedTimestampTag marks the Info-ZIP extended timestamp field.
	ExtendedTimestampTag uint16 = 0x5455
	// UnicodeCommentTag marks the Info-ZIP Unicode comment shadow field.
	UnicodeCommentTag uint16 = 0x6375
	// UnicodePathTag marks the Info-ZIP Unicode path shadow field.
	UnicodePathTag uint16 = 0x7075
)

// Header identifies which structural region a field is being serialized
// into. Some fields encode differently in the two regions; the extended
// timestamp, for instance, drops access/create times in the central
// directory to save space.
type Header int

const (
	// LocalHeader is the per-entry header preceding the payload.
	LocalHeader Header = iota
	// CentralDirectory is the trailing index region.
	CentralDirectory
)

// A Field is one record of the extra-field chain.
type Field interface {
	// Tag returns the record's 16-bit identifier.
	Tag() uint16

	// AppendData appends the record's payload (excluding the tag/length
	// prefix) to b and returns the extended slice.
	AppendData(b []byte, h Header) []byte
}

// ParseFunc decodes the payload of one record. Returning an error makes the
// chain keep the record as an opaque [Unknown] instead; a malformed known
// field is never fatal to the chain.
type ParseFunc func(tag uint16, data []byte) (Field, error)

var registry sync.Map // uint16 -> ParseFunc

// Register installs a parser for the given tag, replacing any previous one.
func Register(tag uint16, fn ParseFunc) {
	registry.Store(tag, fn)
}

func init() {
	Register(Zip64Tag, parseZip64)
	Register(ExtendedTimestampTag, parseExtendedTimestamp)
	Register(UnicodePathTag, parseUnicode)
	Register(UnicodeCommentTag, parseUnicode)
}

// Fields is an ordered extra-field chain.
type Fields []Field

// Parse walks the raw extra-field bytes of a file header.
//
// Records with registered tags are decoded into their typed variants; all
// others become [Unknown]. A trailing region too short to hold a tag/length
// pair, or whose declared length overruns the chain, is preserved as
// [Unparseable] so that Append reproduces the input byte for byte.
func Parse(b []byte) Fields {
	var fs Fields
	for len(b) >= 4 {
		tag := binary.LittleEndian.Uint16(b)
		size := int(binary.LittleEndian.Uint16(b[2:]))
		if size > len(b)-4 {
			break
		}

		data := b[4 : 4+size]
		b = b[4+size:]

		if v, ok := registry.Load(tag); ok {
			if f, err := v.(ParseFunc)(tag, data); err == nil {
				fs = append(fs, f)
				continue
			}
		}

		fs = append(fs, &Unknown{ID: tag, Data: append([]byte(nil), data...)})
	}

	if len(b) > 0 {
		fs = append(fs, &Unparseable{Data: append([]byte(nil), b...)})
	}

	return fs
}

// Append serializes the chain for the given structural region and returns the
// extended slice.
func (fs Fields) Append(b []byte, h Header) []byte {
	for _, f := range fs {
		if u, ok := f.(*Unparseable); ok {
			b = append(b, u.Data...)
			continue
		}

		data := f.AppendData(nil, h)
		b = binary.LittleEndian.AppendUint16(b, f.Tag())
		b = binary.LittleEndian.AppendUint16(b, uint16(len(data)))
		b = append(b, data...)
	}
	return b
}

// EncodedLen returns the serialized length of the chain for the given region.
func (fs Fields) EncodedLen(h Header) int {
	return len(fs.Append(nil, h))
}

// Get returns the first record with the given tag, or nil.
func (fs Fields) Get(tag uint16) Field {
	for _, f := range fs {
		if f.Tag() == tag {
			return f
		}
	}
	return nil
}

// Without returns a copy of the chain with all records of the given tag
// removed; used by writers that regenerate a field they own.
func (fs Fields) Without(tag uint16) Fields {
	var out Fields
	for _, f := range fs {
		if f.Tag() != tag {
			out = append(out, f)
		}
	}
	return out
}

// Zip64 returns the chain's 64-bit size/offset extension, or nil.
func (fs Fields) Zip64() *Zip64 {
	if f, ok := fs.Get(Zip64Tag).(*Zip64); ok {
		return f
	}
	return nil
}

// Timestamp returns the chain's extended timestamp record, or nil.
func (fs Fields) Timestamp() *ExtendedTimestamp {
	if f, ok := fs.Get(ExtendedTimestampTag).(*ExtendedTimestamp); ok {
		return f
	}
	return nil
}

// UnicodePath returns the chain's Unicode path shadow field, or nil.
func (fs Fields) UnicodePath() *Unicode {
	if f, ok := fs.Get(UnicodePathTag).(*Unicode); ok {
		return f
	}
	return nil
}

// UnicodeComment returns the chain's Unicode comment shadow field, or nil.
func (fs Fields) UnicodeComment() *Unicode {
	if f, ok := fs.Get(UnicodeCommentTag).(*Unicode); ok {
		return f
	}
	return nil
}

// Unknown is an unrecognized record preserved verbatim.
type Unknown struct {
	ID   uint16
	Data []byte
}

func (f *Unknown) Tag() uint16 {
	return f.ID
}

func (f *Unknown) AppendData(b []byte, _ Header) []byte {
	return append(b, f.Data...)
}

// Unparseable preserves a trailing region of the chain that does not form a
// valid tag/length record. Append re-emits it verbatim, without a prefix.
type Unparseable struct {
	Data []byte
}

// Tag returns 0; an Unparseable region has no identifier of its own.
func (f *Unparseable) Tag() uint16 {
	return 0
}

func (f *Unparseable) AppendData(b []byte, _ Header) []byte {
	return append(b, f.Data...)
}

// UnsupportedFieldError reports a 64-bit extension whose payload is
// internally inconsistent with the sentinel bookkeeping of its file header.
// It is fatal: no size derived from such a field can be trusted.
type UnsupportedFieldError struct {
	Tag    uint16
	Reason string
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("unsupported extra field 0x%04x: %s", e.Tag, e.Reason)
}
