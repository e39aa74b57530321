// Package zipenc negotiates how entry names and comments are encoded as
// bytes inside an archive.
//
// UTF-8 is the default and is convertible by direct transcoding. Any other
// charset known to the IANA index (golang.org/x/text) can be requested;
// characters that cannot round-trip in it are individually replaced by a
// six-character escape of the form "%U" followed by four hex digits of the
// UTF-16 code unit, which decoding reverses exactly. The escape assumes an
// ASCII-compatible target charset, which covers every charset ZIP tooling
// uses in practice.
package zipenc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

// Encoding converts entry names and comments between text and bytes.
type Encoding interface {
	// Name returns the charset name the encoding was requested under.
	Name() string

	// IsUTF8 reports whether this is the direct UTF-8 transcoding, which
	// is exempt from the escape path.
	IsUTF8() bool

	// CanEncode reports whether every character of s round-trips
	// losslessly, without escaping.
	CanEncode(s string) bool

	// Encode returns the encoded bytes of s. Characters that cannot
	// round-trip are replaced by the %U escape; Encode never fails.
	Encode(s string) []byte

	// Decode is the exact inverse of Encode. Malformed input decodes to
	// the Unicode replacement character rather than failing the record.
	Decode(b []byte) string
}

// UTF8 is the default Encoding.
var UTF8 Encoding = utf8Encoding{}

// For returns the Encoding for the given IANA charset name. The empty string
// and any spelling of "utf-8" return [UTF8].
func For(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	}

	e, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("look up charset %q error: %w", name, err)
	}
	if e == nil {
		// the index knows the name but x/text carries no codec for it.
		return nil, fmt.Errorf("charset %q has no codec", name)
	}

	return &charsetEncoding{name: name, enc: e}, nil
}

type utf8Encoding struct{}

func (utf8Encoding) Name() string {
	return "UTF-8"
}

func (utf8Encoding) IsUTF8() bool {
	return true
}

func (utf8Encoding) CanEncode(s string) bool {
	return utf8.ValidString(s)
}

func (utf8Encoding) Encode(s string) []byte {
	return []byte(s)
}

func (utf8Encoding) Decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// UnicodeExtraPolicy controls when a writer attaches Unicode shadow extra
// fields next to the primary encoded name/comment.
type UnicodeExtraPolicy int

const (
	// UnicodeExtrasNever attaches no shadow fields.
	UnicodeExtrasNever UnicodeExtraPolicy = iota
	// UnicodeExtrasNotEncodeable attaches a shadow field only when the
	// primary encoding cannot represent the text losslessly.
	UnicodeExtrasNotEncodeable
	// UnicodeExtrasAlways attaches shadow fields to every entry.
	UnicodeExtrasAlways
)

// Policy is the per-session encoding context: the declared encoding plus the
// flag and shadow-field policies. The zero value uses UTF-8, sets the UTF-8
// flag, and writes no shadow fields.
//
// A Policy is derived from configuration per read or write session; it is
// never persisted in the archive.
type Policy struct {
	// Encoding is the primary charset. Nil means UTF8.
	Encoding Encoding

	// DisableUTF8Flag stops the writer from setting, and the reader from
	// trusting, the "names are UTF-8" general-purpose flag (bit 11).
	DisableUTF8Flag bool

	// UnicodeExtras selects when Unicode shadow extra fields are written.
	UnicodeExtras UnicodeExtraPolicy
}

func (p Policy) encoding() Encoding {
	if p.Encoding == nil {
		return UTF8
	}
	return p.Encoding
}

// EncodeText encodes s for storage, reporting whether the UTF-8 flag may be
// set for it and whether a Unicode shadow extra field is required.
func (p Policy) EncodeText(s string) (raw []byte, utf8Flag, shadow bool) {
	enc := p.encoding()
	raw = enc.Encode(s)
	utf8Flag = enc.IsUTF8() && !p.DisableUTF8Flag

	switch p.UnicodeExtras {
	case UnicodeExtrasAlways:
		shadow = true
	case UnicodeExtrasNotEncodeable:
		shadow = !enc.IsUTF8() && !enc.CanEncode(s)
	}
	return
}

// DecodeText decodes stored bytes, honouring the entry's UTF-8 flag unless
// the policy disables it.
func (p Policy) DecodeText(raw []byte, utf8Flag bool) string {
	if utf8Flag && !p.DisableUTF8Flag {
		return UTF8.Decode(raw)
	}
	return p.encoding().Decode(raw)
}
