package zipp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinTransformsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100)

	for _, method := range []uint16{Store, Deflate, BZip2, Zstandard, XZ} {
		t.Run(MethodName(method), func(t *testing.T) {
			comp, ok := NewCompressor(method)
			assert.Truef(t, ok, "NewCompressor(%d) not registered", method)
			dcomp, ok := NewDecompressor(method)
			assert.Truef(t, ok, "NewDecompressor(%d) not registered", method)

			var buf bytes.Buffer
			w, err := comp(&buf)
			assert.NoErrorf(t, err, "comp(...) error = %v", err)
			_, err = w.Write(payload)
			assert.NoErrorf(t, err, "Write(...) error = %v", err)
			err = w.Close()
			assert.NoErrorf(t, err, "Close() error = %v", err)

			r := dcomp(bytes.NewReader(buf.Bytes()))
			got, err := io.ReadAll(r)
			assert.NoErrorf(t, err, "ReadAll(...) error = %v", err)
			assert.NoErrorf(t, r.Close(), "Close() error")
			assert.Equal(t, payload, got)
		})
	}
}

func TestLZMAIsUnregistered(t *testing.T) {
	_, ok := NewCompressor(LZMA)
	assert.False(t, ok)
	_, ok = NewDecompressor(LZMA)
	assert.False(t, ok)
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "store", MethodName(Store))
	assert.Equal(t, "deflate", MethodName(Deflate))
	assert.Equal(t, "zstd", MethodName(Zstandard))
	assert.Equal(t, "method-42", MethodName(42))
}
