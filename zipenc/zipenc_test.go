package zipenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF-8", "utf8"} {
		e, err := For(name)
		assert.NoErrorf(t, err, "For(%q) error = %v", name, err)
		assert.True(t, e.IsUTF8())
	}

	e, err := For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)
	assert.False(t, e.IsUTF8())
	assert.Equal(t, "shift_jis", e.Name())

	_, err = For("not-a-charset")
	assert.Error(t, err)
}

func TestUTF8Encoding(t *testing.T) {
	assert.True(t, UTF8.CanEncode("héllo/世界.txt"))
	assert.False(t, UTF8.CanEncode(string([]byte{0xff, 0xfe})))

	assert.Equal(t, []byte("héllo"), UTF8.Encode("héllo"))
	assert.Equal(t, "héllo", UTF8.Decode([]byte("héllo")))

	// invalid bytes decode to the replacement character, never fail.
	assert.Equal(t, "a�b", UTF8.Decode([]byte{'a', 0xff, 'b'}))
}

func TestCharsetEncoding_RoundTrip(t *testing.T) {
	e, err := For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)

	tests := []struct {
		name string
		text string
	}{
		{name: "ascii", text: "plain/file.txt"},
		{name: "encodeable", text: "日本語テキスト.txt"},
		{name: "escape needed", text: "mixed-ελληνικά.txt"},
		{name: "astral plane", text: "emoji-😀.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := e.Encode(tt.text)
			assert.Equal(t, tt.text, e.Decode(raw))
		})
	}
}

func TestCharsetEncoding_CanEncode(t *testing.T) {
	e, err := For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)

	assert.True(t, e.CanEncode("日本語.txt"))
	assert.False(t, e.CanEncode("ελληνικά.txt"))
}

func TestCharsetEncoding_EscapeFormat(t *testing.T) {
	e, err := For("IBM437")
	assert.NoErrorf(t, err, "For(IBM437) error = %v", err)

	// 日 is U+65E5, which code page 437 cannot represent: one escape per
	// UTF-16 code unit.
	assert.Equal(t, []byte("x%U65E5.txt"), e.Encode("x日.txt"))
	assert.Equal(t, "x日.txt", e.Decode([]byte("x%U65E5.txt")))

	// either hex case decodes.
	assert.Equal(t, "x日.txt", e.Decode([]byte("x%U65e5.txt")))

	// an incomplete escape is ordinary text.
	assert.Equal(t, "caf%U00", e.Decode([]byte("caf%U00")))
}

func TestCharsetEncoding_SurrogatePair(t *testing.T) {
	e, err := For("IBM437")
	assert.NoErrorf(t, err, "For(IBM437) error = %v", err)

	// U+1F600 encodes as the surrogate pair D83D DE00.
	raw := e.Encode("😀")
	assert.Equal(t, []byte("%UD83D%UDE00"), raw)
	assert.Equal(t, "😀", e.Decode(raw))
}

func TestPolicy_EncodeText(t *testing.T) {
	var p Policy // zero value is UTF-8 with the flag
	raw, utf8Flag, shadow := p.EncodeText("héllo.txt")
	assert.Equal(t, []byte("héllo.txt"), raw)
	assert.True(t, utf8Flag)
	assert.False(t, shadow)

	p = Policy{DisableUTF8Flag: true}
	_, utf8Flag, _ = p.EncodeText("héllo.txt")
	assert.False(t, utf8Flag)
}

func TestPolicy_ShadowPolicies(t *testing.T) {
	sjis, err := For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)

	p := Policy{Encoding: sjis, UnicodeExtras: UnicodeExtrasNotEncodeable}
	_, utf8Flag, shadow := p.EncodeText("日本語.txt")
	assert.False(t, utf8Flag)
	assert.Falsef(t, shadow, "an encodeable name needs no shadow field")

	_, _, shadow = p.EncodeText("ελληνικά.txt")
	assert.True(t, shadow)

	p.UnicodeExtras = UnicodeExtrasAlways
	_, _, shadow = p.EncodeText("plain.txt")
	assert.True(t, shadow)
}

func TestPolicy_DecodeText(t *testing.T) {
	sjis, err := For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)

	p := Policy{Encoding: sjis}
	raw := sjis.Encode("日本語.txt")

	// without the UTF-8 flag the configured charset applies.
	assert.Equal(t, "日本語.txt", p.DecodeText(raw, false))

	// the flag overrides the charset unless disabled.
	assert.Equal(t, "héllo", p.DecodeText([]byte("héllo"), true))
	p.DisableUTF8Flag = true
	assert.NotEqual(t, "héllo", p.DecodeText([]byte("héllo"), true))
}
