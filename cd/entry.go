package cd

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/extra"
	"github.com/zippkg/zipp/util"
)

// Entry is one central directory file header plus the means to open its
// payload.
//
// The sizes, CRC-32 and offset have already been widened and resolved against
// the entry's ZIP64 extension, and Name/Comment decoded per the scan's
// encoding policy, so callers can use the embedded fields directly.
type Entry struct {
	zipp.FileHeader

	// Fields is the parsed extra-field chain; zipp.FileHeader.Extra keeps
	// the raw bytes.
	Fields extra.Fields

	nameLen, extraLen int

	src  source
	opts *Options
}

// Open returns a reader over the entry's decompressed payload.
//
// The payload location is found by reading the entry's local file header on
// demand; nothing is read before Open. The reader verifies the CRC-32 of the
// decompressed bytes and returns [zipp.ErrChecksum] from the Read that reaches
// EOF on a mismatch. Close never closes the underlying archive.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.Encrypted() {
		return nil, fmt.Errorf("open %s: %w", e.Name, zipp.ErrEncrypted)
	}

	body, err := e.OpenRaw()
	if err != nil {
		return nil, err
	}

	dcomp, ok := e.opts.decompressor(e.Method)
	if !ok {
		return nil, fmt.Errorf("open %s: %s: %w", e.Name, zipp.MethodName(e.Method), zipp.ErrMethod)
	}

	return &checksumReader{rc: dcomp(body), hash: crc32.NewIEEE(), want: e.CRC32}, nil
}

// OpenRaw returns a reader over the entry's payload exactly as stored,
// compressed and unverified. Combined with a writer's raw-create operation it
// transplants entries between archives without a decompression round trip.
func (e *Entry) OpenRaw() (io.Reader, error) {
	off, err := e.dataOffset()
	if err != nil {
		return nil, err
	}
	return e.src.section(off, int64(e.CompressedSize64)), nil
}

// WriteTo decompresses the payload to dst, honouring the scan's context.
func (e *Entry) WriteTo(dst io.Writer) (int64, error) {
	r, err := e.Open()
	if err != nil {
		return 0, err
	}

	n, err := util.CopyBufferWithContext(e.opts.Ctx, dst, r, nil)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// dataOffset reads the entry's local file header to locate the first payload
// byte. The directory's name and extra lengths cannot be used: writers may
// store different extra fields in the two regions.
func (e *Entry) dataOffset() (int64, error) {
	buf := make([]byte, zipp.LocalFileHeaderLen)
	if err := e.src.readAt(buf, int64(e.Offset)); err != nil {
		return 0, &zipp.MalformedRecordError{Record: "local file header", Err: err}
	}

	b := zipp.ReadBuf(buf)
	if b.Uint32() != zipp.SigLocalFileHeader {
		return 0, &MalformedSignatureError{Record: "local file header"}
	}
	b.Skip(22)
	n := int64(b.Uint16())
	m := int64(b.Uint16())

	return int64(e.Offset) + zipp.LocalFileHeaderLen + n + m, nil
}

// checksumReader hashes the decompressed stream and flags a mismatch on the
// Read that observes EOF.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
}

func (r *checksumReader) Read(p []byte) (n int, err error) {
	n, err = r.rc.Read(p)
	r.hash.Write(p[:n])
	if err == io.EOF && r.hash.Sum32() != r.want {
		return n, zipp.ErrChecksum
	}
	return n, err
}

func (r *checksumReader) Close() error {
	return r.rc.Close()
}
