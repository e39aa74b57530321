package zipenc

import (
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

// charsetEncoding adapts a golang.org/x/text encoding to the escape scheme:
// characters the charset cannot represent are written as "%U" plus four hex
// digits per UTF-16 code unit, each half of a surrogate pair escaped
// independently.
type charsetEncoding struct {
	name string
	enc  encoding.Encoding
}

func (c *charsetEncoding) Name() string {
	return c.name
}

func (c *charsetEncoding) IsUTF8() bool {
	return false
}

func (c *charsetEncoding) CanEncode(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}

	_, err := c.enc.NewEncoder().String(s)
	return err == nil
}

func (c *charsetEncoding) Encode(s string) []byte {
	e := c.enc.NewEncoder()

	// fast path: the whole string converts.
	if b, err := e.String(s); err == nil {
		return []byte(b)
	}

	var out []byte
	for _, r := range s {
		b, err := e.String(string(r))
		if err == nil {
			out = append(out, b...)
			continue
		}

		for _, u := range utf16.Encode([]rune{r}) {
			out = appendEscape(out, c.enc, u)
		}
	}
	return out
}

const hexDigits = "0123456789ABCDEF"

// appendEscape writes the %Uxxxx escape, itself run through the target
// encoder so the escape bytes are valid in the charset. ASCII round-trips in
// every charset this package is used with; if the encoder rejects even that,
// the raw ASCII bytes are used.
func appendEscape(out []byte, enc encoding.Encoding, u uint16) []byte {
	esc := []byte{'%', 'U',
		hexDigits[u>>12&0xf], hexDigits[u>>8&0xf], hexDigits[u>>4&0xf], hexDigits[u&0xf]}
	if b, err := enc.NewEncoder().Bytes(esc); err == nil {
		return append(out, b...)
	}
	return append(out, esc...)
}

func (c *charsetEncoding) Decode(b []byte) string {
	d := c.enc.NewDecoder()

	var (
		sb    []byte
		units []uint16
	)

	flushUnits := func() {
		for _, r := range utf16.Decode(units) {
			sb = utf8.AppendRune(sb, r)
		}
		units = units[:0]
	}

	for i := 0; i < len(b); {
		if u, ok := parseEscape(b[i:]); ok {
			units = append(units, u)
			i += 6
			continue
		}

		flushUnits()

		// decode the maximal run up to the next escape candidate.
		j := i + 1
		for j < len(b) {
			if _, ok := parseEscape(b[j:]); ok {
				break
			}
			j++
		}

		s, err := d.Bytes(b[i:j])
		if err != nil {
			// malformed input decodes to the replacement character
			// instead of failing the whole record.
			sb = utf8.AppendRune(sb, '�')
		} else {
			sb = append(sb, s...)
		}
		i = j
	}

	flushUnits()
	return string(sb)
}

// parseEscape recognizes a %Uxxxx sequence at the start of b, in either hex
// case.
func parseEscape(b []byte) (uint16, bool) {
	if len(b) < 6 || b[0] != '%' || b[1] != 'U' {
		return 0, false
	}

	var u uint16
	for _, c := range b[2:6] {
		switch {
		case c >= '0' && c <= '9':
			u = u<<4 | uint16(c-'0')
		case c >= 'A' && c <= 'F':
			u = u<<4 | uint16(c-'A'+10)
		case c >= 'a' && c <= 'f':
			u = u<<4 | uint16(c-'a'+10)
		default:
			return 0, false
		}
	}
	return u, true
}
