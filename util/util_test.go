package util

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// shortWriter accepts all but the last byte of every write.
type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) > 1 {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func TestTruncateRight(t *testing.T) {
	assert.Equal(t, "hello", TruncateRight("hello", 10))
	assert.Equal(t, "hel", TruncateRight("hello", 3))
	assert.Equal(t, "", TruncateRight("hello", 0))

	assert.Equal(t, "hello", TruncateRightWithSuffix("hello", 5, "..."))
	assert.Equal(t, "hel...", TruncateRightWithSuffix("hello", 3, "..."))

	// runes, not bytes.
	assert.Equal(t, "日本...", TruncateRightWithSuffix("日本語テキスト", 2, "..."))
}

func TestStemAndExt(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantStem string
		wantExt  string
	}{
		{
			name:     "test.txt",
			path:     "C:\\Users\\test.txt",
			wantStem: "test",
			wantExt:  ".txt",
		},
		{
			name:     "test.tar.gz",
			path:     "/path/to/test.tar.gz",
			wantStem: "test",
			wantExt:  ".tar.gz",
		},
		{
			name:     "test.zip",
			path:     "archives/test.zip",
			wantStem: "test",
			wantExt:  ".zip",
		},
		{
			name:     "long trailing segment stays in stem",
			path:     "/path/to/test.jfif-tbnl",
			wantStem: "test.jfif-tbnl",
			wantExt:  "",
		},
		{
			name:     "no extension",
			path:     "/path/to/ab",
			wantStem: "ab",
			wantExt:  "",
		},
		{
			name:     "bare name",
			path:     "ab",
			wantStem: "ab",
			wantExt:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStem, gotExt := StemAndExt(tt.path)
			assert.Equalf(t, tt.wantStem, gotStem, "StemAndExt() gotStem = %v, want %v", gotStem, tt.wantStem)
			assert.Equalf(t, tt.wantExt, gotExt, "StemAndExt() gotExt = %v, want %v", gotExt, tt.wantExt)
		})
	}
}

func TestOpenExclFile(t *testing.T) {
	dir := t.TempDir()

	f, err := OpenExclFile(dir, "test", ".zip", 0644)
	assert.NoErrorf(t, err, "OpenExclFile(...) error = %v", err)
	assert.Equal(t, filepath.Join(dir, "test.zip"), f.Name())
	_ = f.Close()

	// the suffix goes before the extension.
	f, err = OpenExclFile(dir, "test", ".zip", 0644)
	assert.NoErrorf(t, err, "OpenExclFile(...) error = %v", err)
	assert.Equal(t, filepath.Join(dir, "test-1.zip"), f.Name())
	_ = f.Close()
}

func TestMkExclDir(t *testing.T) {
	dir := t.TempDir()

	name, err := MkExclDir(dir, "out", 0755)
	assert.NoErrorf(t, err, "MkExclDir(...) error = %v", err)
	assert.Equal(t, filepath.Join(dir, "out"), name)

	name, err = MkExclDir(dir, "out", 0755)
	assert.NoErrorf(t, err, "MkExclDir(...) error = %v", err)
	assert.Equal(t, filepath.Join(dir, "out-1"), name)

	fi, err := os.Stat(name)
	assert.NoErrorf(t, err, "Stat(...) error = %v", err)
	assert.True(t, fi.IsDir())
}

func TestCopyBufferWithContext(t *testing.T) {
	src := strings.Repeat("payload ", 1024)

	var dst bytes.Buffer
	n, err := CopyBufferWithContext(context.Background(), &dst, strings.NewReader(src), nil)
	assert.NoErrorf(t, err, "CopyBufferWithContext(...) error = %v", err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, src, dst.String())
}

func TestCopyBufferWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := CopyBufferWithContext(ctx, &dst, strings.NewReader("payload"), make([]byte, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyBufferWithContext_ShortWrite(t *testing.T) {
	_, err := CopyBufferWithContext(context.Background(), shortWriter{}, strings.NewReader("payload"), nil)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestChainCloser(t *testing.T) {
	var order []int
	fn := func(i int, err error) func() error {
		return func() error {
			order = append(order, i)
			return err
		}
	}

	err := ChainCloser(fn(1, nil), fn(2, nil))()
	assert.NoErrorf(t, err, "ChainCloser(...)() error = %v", err)
	assert.Equal(t, []int{1, 2}, order)

	// every closer runs even when an earlier one fails, and all the errors
	// surface.
	order = nil
	first, second := errors.New("first"), errors.New("second")
	err = ChainCloser(fn(1, first), fn(2, nil), fn(3, second))()
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []int{1, 2, 3}, order)
}
