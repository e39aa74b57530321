package zipw

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/cd"
	"github.com/zippkg/zipp/extra"
	"github.com/zippkg/zipp/scan"
	"github.com/zippkg/zipp/zipenc"
)

var testEntries = [][2]string{
	{"a.txt", "contents of a"},
	{"path/b.txt", strings.Repeat("b is longer and compressible ", 64)},
	{"another/path/c.txt", "c"},
}

func writeTestEntries(t *testing.T, w *Writer) {
	t.Helper()

	for _, e := range testEntries {
		fw, err := w.Create(e[0])
		assert.NoErrorf(t, err, "Create(%s) error = %v", e[0], err)
		_, err = fw.Write([]byte(e[1]))
		assert.NoErrorf(t, err, "Write(...) error = %v", err)
		err = w.CloseEntry()
		assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	}
}

// readWithStdlib cross-checks the archive with archive/zip.
func readWithStdlib(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "zip.NewReader(...) error = %v", err)

	got := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		assert.NoErrorf(t, err, "Open(%s) error = %v", f.Name, err)
		b, err := io.ReadAll(rc)
		assert.NoErrorf(t, err, "ReadAll(%s) error = %v", f.Name, err)
		_ = rc.Close()
		got[f.Name] = string(b)
	}
	return got
}

func asMap(entries [][2]string) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e[0]] = e[1]
	}
	return m
}

func TestWriter_Streaming(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeTestEntries(t, w)

	err := w.SetComment("written in streaming mode")
	assert.NoErrorf(t, err, "SetComment(...) error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	assert.Equal(t, asMap(testEntries), readWithStdlib(t, buf.Bytes()))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "zip.NewReader(...) error = %v", err)
	assert.Equal(t, "written in streaming mode", zr.Comment)
	for _, f := range zr.File {
		assert.NotZerof(t, f.Flags&zipp.FlagDataDescriptor, "streaming entry %s should declare a data descriptor", f.Name)
	}

	// the archive must also stream back through the local headers.
	r := scan.NewReader(bytes.NewReader(buf.Bytes()))
	for _, want := range testEntries {
		fh, err := r.Next()
		assert.NoErrorf(t, err, "Next() error = %v", err)
		assert.Equal(t, want[0], fh.Name)
		got, err := io.ReadAll(r)
		assert.NoErrorf(t, err, "ReadAll(...) error = %v", err)
		assert.Equal(t, want[1], string(got))
	}
}

func TestWriter_Seekable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seekable.zip")
	w, err := Create(path)
	assert.NoErrorf(t, err, "Create(%s) error = %v", path, err)

	writeTestEntries(t, w)
	err = w.Close()
	assert.NoErrorf(t, err, "Close() error = %v", err)

	data, err := os.ReadFile(path)
	assert.NoErrorf(t, err, "ReadFile(...) error = %v", err)
	assert.Equal(t, asMap(testEntries), readWithStdlib(t, data))

	// patched headers mean no entry needs a descriptor: a front-to-back
	// scan sees final sizes immediately.
	r := scan.NewReader(bytes.NewReader(data))
	for _, want := range testEntries {
		fh, err := r.Next()
		assert.NoErrorf(t, err, "Next() error = %v", err)
		assert.Falsef(t, fh.UsesDataDescriptor(), "seekable entry %s should not declare a descriptor", fh.Name)
		assert.Equal(t, uint64(len(want[1])), fh.UncompressedSize64)
		got, err := io.ReadAll(r)
		assert.NoErrorf(t, err, "ReadAll(...) error = %v", err)
		assert.Equal(t, want[1], string(got))
	}
}

func TestWriter_RoundTripOwnReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeTestEntries(t, w)
	err := w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	rec, entries, err := cd.Scan(bytes.NewReader(buf.Bytes()))
	assert.NoErrorf(t, err, "Scan(...) error = %v", err)
	assert.Equal(t, uint64(len(testEntries)), rec.CDCount)

	idx, err := cd.NewIndex(rec, entries)
	assert.NoErrorf(t, err, "NewIndex(...) error = %v", err)
	for _, want := range testEntries {
		e, ok := idx.Lookup(want[0])
		assert.Truef(t, ok, "Lookup(%s) should find the entry", want[0])

		var sb strings.Builder
		_, err = e.WriteTo(&sb)
		assert.NoErrorf(t, err, "WriteTo(...) error = %v", err)
		assert.Equal(t, want[1], sb.String())
	}
}

func TestWriter_Directories(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	_, err := w.Create("dir/")
	assert.NoErrorf(t, err, "Create(dir/) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)

	fw, err := w.Create("dir/file.txt")
	assert.NoErrorf(t, err, "Create(...) error = %v", err)
	_, err = fw.Write([]byte("x"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	assert.NoErrorf(t, err, "zip.NewReader(...) error = %v", err)
	assert.Len(t, zr.File, 2)
	assert.True(t, zr.File[0].FileInfo().IsDir())
}

func TestWriter_DirectoryPayloadRefused(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	fw, err := w.Create("dir/")
	assert.NoErrorf(t, err, "Create(dir/) error = %v", err)
	_, err = fw.Write([]byte("payload"))
	assert.Error(t, err)
}

func TestWriter_UnclosedEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	_, err := w.Create("open.txt")
	assert.NoErrorf(t, err, "Create(...) error = %v", err)

	err = w.Finish()
	assert.ErrorIs(t, err, zipp.ErrUnclosedEntry)
}

func TestWriter_CreateAutoClosesPrevious(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	fw, err := w.Create("first.txt")
	assert.NoErrorf(t, err, "Create(...) error = %v", err)
	_, err = fw.Write([]byte("one"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)

	// no CloseEntry: creating the next entry finishes the first.
	fw, err = w.Create("second.txt")
	assert.NoErrorf(t, err, "Create(...) error = %v", err)
	_, err = fw.Write([]byte("two"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	assert.Equal(t, map[string]string{"first.txt": "one", "second.txt": "two"}, readWithStdlib(t, buf.Bytes()))
}

func TestWriter_CreateRaw(t *testing.T) {
	payload := []byte(strings.Repeat("raw deflate round trip ", 32))

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	assert.NoErrorf(t, err, "flate.NewWriter(...) error = %v", err)
	_, err = fw.Write(payload)
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = fw.Close()
	assert.NoErrorf(t, err, "Close() error = %v", err)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	raw, err := w.CreateRaw(&zipp.FileHeader{
		Name:               "raw.txt",
		Method:             zipp.Deflate,
		CRC32:              crc32.ChecksumIEEE(payload),
		CompressedSize64:   uint64(compressed.Len()),
		UncompressedSize64: uint64(len(payload)),
	})
	assert.NoErrorf(t, err, "CreateRaw(...) error = %v", err)
	_, err = raw.Write(compressed.Bytes())
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	assert.Equal(t, map[string]string{"raw.txt": string(payload)}, readWithStdlib(t, buf.Bytes()))
}

func TestWriter_CreateRawCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	raw, err := w.CreateRaw(&zipp.FileHeader{
		Name:               "short.bin",
		Method:             zipp.Store,
		CompressedSize64:   100,
		UncompressedSize64: 100,
	})
	assert.NoErrorf(t, err, "CreateRaw(...) error = %v", err)
	_, err = raw.Write([]byte("only a few bytes"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)

	err = w.CloseEntry()
	assert.Error(t, err)
}

func TestWriter_Copy(t *testing.T) {
	var src bytes.Buffer
	w := NewWriter(&src)
	writeTestEntries(t, w)
	err := w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	rec, entries, err := cd.ScanFromReaderAt(bytes.NewReader(src.Bytes()), int64(src.Len()))
	assert.NoErrorf(t, err, "ScanFromReaderAt(...) error = %v", err)
	idx, err := cd.NewIndex(rec, entries)
	assert.NoErrorf(t, err, "NewIndex(...) error = %v", err)

	// transplant every entry into a new archive without recompressing.
	var dst bytes.Buffer
	w = NewWriter(&dst)
	for _, e := range idx.Entries() {
		err = w.Copy(e)
		assert.NoErrorf(t, err, "Copy(%s) error = %v", e.Name, err)
	}
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	assert.Equal(t, asMap(testEntries), readWithStdlib(t, dst.Bytes()))
}

func TestWriter_Zip64Always(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithZip64(Zip64Always))
	writeTestEntries(t, w)
	err := w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	// archive/zip and the central directory scan must both cope with the
	// promoted records.
	assert.Equal(t, asMap(testEntries), readWithStdlib(t, buf.Bytes()))

	rec, entries, err := cd.Scan(bytes.NewReader(buf.Bytes()))
	assert.NoErrorf(t, err, "Scan(...) error = %v", err)
	assert.True(t, rec.Zip64)
	assert.Equal(t, uint64(len(testEntries)), rec.CDCount)

	for e, err := range entries {
		assert.NoErrorf(t, err, "entries error = %v", err)
		assert.GreaterOrEqual(t, e.ReaderVersion, zipp.VersionZip64)
	}

	// the legacy record carries sentinels that point readers at the ZIP64
	// record, even though the real values would have fit.
	data := buf.Bytes()
	i := bytes.LastIndex(data, zipp.AppendUint32(nil, zipp.SigEOCD))
	assert.NotEqual(t, -1, i)
	assert.Equal(t, uint16(zipp.Max16), binary.LittleEndian.Uint16(data[i+10:]))
	assert.Equal(t, uint32(zipp.Max32), binary.LittleEndian.Uint32(data[i+12:]))
	assert.Equal(t, uint32(zipp.Max32), binary.LittleEndian.Uint32(data[i+16:]))
}

func TestWriter_Zip64NeverRefusesLargeEntry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithZip64(Zip64Never))

	_, err := w.CreateRaw(&zipp.FileHeader{
		Name:               "huge.bin",
		Method:             zipp.Store,
		CompressedSize64:   5_000_000_000,
		UncompressedSize64: 5_000_000_000,
	})
	assert.ErrorIs(t, err, ErrZip64Required)
}

func TestWriter_ExtraFieldsRoundTrip(t *testing.T) {
	custom := &extra.Unknown{ID: 0xcafe, Data: []byte{1, 2, 3}}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	fw, err := w.CreateHeader(&zipp.FileHeader{
		Name:     "with-extra.txt",
		Method:   zipp.Store,
		Modified: time.Date(2024, time.June, 15, 13, 37, 42, 0, time.UTC),
		Extra:    extra.Fields{custom}.Append(nil, extra.LocalHeader),
	})
	assert.NoErrorf(t, err, "CreateHeader(...) error = %v", err)
	_, err = fw.Write([]byte("x"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	rec, entries, err := cd.Scan(bytes.NewReader(buf.Bytes()))
	assert.NoErrorf(t, err, "Scan(...) error = %v", err)
	idx, err := cd.NewIndex(rec, entries)
	assert.NoErrorf(t, err, "NewIndex(...) error = %v", err)

	e, ok := idx.Lookup("with-extra.txt")
	assert.True(t, ok)

	f := e.Fields.Get(0xcafe)
	assert.NotNil(t, f)
	assert.Equal(t, []byte{1, 2, 3}, f.(*extra.Unknown).Data)
	assert.Equal(t, time.Date(2024, time.June, 15, 13, 37, 42, 0, time.UTC), e.Modified)
}

func TestWriter_NonUTF8Encoding(t *testing.T) {
	sjis, err := zipenc.For("shift_jis")
	assert.NoErrorf(t, err, "For(shift_jis) error = %v", err)

	var buf bytes.Buffer
	w := NewWriter(&buf, WithEncoding(zipenc.Policy{
		Encoding:      sjis,
		UnicodeExtras: zipenc.UnicodeExtrasNotEncodeable,
	}))

	fw, err := w.Create("日本語.txt")
	assert.NoErrorf(t, err, "Create(...) error = %v", err)
	_, err = fw.Write([]byte("konnichiwa"))
	assert.NoErrorf(t, err, "Write(...) error = %v", err)
	err = w.CloseEntry()
	assert.NoErrorf(t, err, "CloseEntry() error = %v", err)
	err = w.Finish()
	assert.NoErrorf(t, err, "Finish() error = %v", err)

	// reading back with the same declared charset restores the name.
	rec, entries, err := cd.Scan(bytes.NewReader(buf.Bytes()),
		cd.WithEncoding(zipenc.Policy{Encoding: sjis}))
	assert.NoErrorf(t, err, "Scan(...) error = %v", err)
	idx, err := cd.NewIndex(rec, entries)
	assert.NoErrorf(t, err, "NewIndex(...) error = %v", err)

	e, ok := idx.Lookup("日本語.txt")
	assert.Truef(t, ok, "Lookup should find the decoded name; entries = %v", idx.Entries())
	assert.False(t, e.IsUTF8())
	assert.NotNil(t, e.RawName)
	assert.NotEqual(t, []byte(e.Name), e.RawName)
}
