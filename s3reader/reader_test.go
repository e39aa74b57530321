package s3reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

// fakeClient serves ranged GetObject calls by slicing an in-memory object,
// counting the API calls so tests can assert on readahead behaviour.
type fakeClient struct {
	data  []byte
	gets  int
	heads int
}

func (c *fakeClient) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.gets++

	var start, end int64
	if _, err := fmt.Sscanf(aws.ToString(input.Range), "bytes=%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("unexpected Range %q: %w", aws.ToString(input.Range), err)
	}

	size := int64(len(c.data))
	if start >= size {
		return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	if end >= size {
		end = size - 1
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(c.data[start : end+1]))}, nil
}

func (c *fakeClient) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.heads++
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(c.data)))}, nil
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestReader_Read(t *testing.T) {
	client := &fakeClient{data: testData(150_000)}
	r := New(client, "bucket", "key")

	got, err := io.ReadAll(r)
	assert.NoErrorf(t, err, "ReadAll(...) error = %v", err)
	assert.Equal(t, client.data, got)

	// the readahead buffer keeps the call count far below the read count.
	assert.Less(t, client.gets, 10)
}

func TestReader_SmallReadsShareOneFetch(t *testing.T) {
	client := &fakeClient{data: testData(10_000)}
	r := New(client, "bucket", "key")

	buf := make([]byte, 100)
	for i := 0; i < 50; i++ {
		_, err := io.ReadFull(r, buf)
		assert.NoErrorf(t, err, "ReadFull(...) error = %v", err)
		assert.Equal(t, client.data[i*100:(i+1)*100], buf)
	}
	assert.Equal(t, 1, client.gets)
}

func TestReader_ReadAt(t *testing.T) {
	client := &fakeClient{data: testData(100_000)}
	r := New(client, "bucket", "key")

	buf := make([]byte, 1_000)
	for _, off := range []int64{0, 1, 64*1024 - 1, 99_000} {
		n, err := r.ReadAt(buf, off)
		assert.NoErrorf(t, err, "ReadAt(..., %d) error = %v", off, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, client.data[off:off+1_000], buf)
	}

	// a range reaching past the object's end is a short read.
	n, err := r.ReadAt(buf, int64(len(client.data))-10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
	assert.Equal(t, client.data[len(client.data)-10:], buf[:n])
}

func TestNewReadSeeker(t *testing.T) {
	client := &fakeClient{data: testData(50_000)}
	r, err := NewReadSeeker(client, "bucket", "key")
	assert.NoErrorf(t, err, "NewReadSeeker(...) error = %v", err)

	assert.Equal(t, 1, client.heads)
	assert.Equal(t, int64(50_000), r.Size())
}

func TestReadSeeker_Seek(t *testing.T) {
	client := &fakeClient{data: testData(50_000)}
	r := NewReadSeekerWithSize(client, "bucket", "key", int64(len(client.data)))
	assert.Equal(t, 0, client.heads)

	// read the last 22 bytes the way a trailer search does.
	off, err := r.Seek(-22, io.SeekEnd)
	assert.NoErrorf(t, err, "Seek(-22, SeekEnd) error = %v", err)
	assert.Equal(t, int64(50_000-22), off)

	buf := make([]byte, 22)
	_, err = io.ReadFull(r, buf)
	assert.NoErrorf(t, err, "ReadFull(...) error = %v", err)
	assert.Equal(t, client.data[50_000-22:], buf)

	off, err = r.Seek(100, io.SeekStart)
	assert.NoErrorf(t, err, "Seek(100, SeekStart) error = %v", err)
	assert.Equal(t, int64(100), off)

	off, err = r.Seek(-50, io.SeekCurrent)
	assert.NoErrorf(t, err, "Seek(-50, SeekCurrent) error = %v", err)
	assert.Equal(t, int64(50), off)

	_, err = io.ReadFull(r, buf)
	assert.NoErrorf(t, err, "ReadFull(...) error = %v", err)
	assert.Equal(t, client.data[50:72], buf)

	_, err = r.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}
