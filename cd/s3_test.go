package cd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

// fakeS3 serves ranged GetObject calls by slicing an in-memory object.
type fakeS3 struct {
	data []byte
	gets int
}

func (c *fakeS3) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
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

func (c *fakeS3) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(c.data)))}, nil
}

func TestScanFromS3(t *testing.T) {
	client := &fakeS3{data: buildArchive(t, testEntries, "remote archive")}

	r, entries, err := ScanFromS3(client, "bucket", "archive.zip")
	assert.NoErrorf(t, err, "ScanFromS3(...) error = %v", err)
	assert.Equal(t, uint64(len(testEntries)), r.CDCount)
	assert.Equal(t, []byte("remote archive"), r.Comment)

	idx, err := NewIndex(r, entries)
	assert.NoErrorf(t, err, "NewIndex(...) error = %v", err)
	assert.Equal(t, len(testEntries), idx.Len())

	// listing the directory must not have fetched anything near the size of
	// the payload region.
	listGets := client.gets

	for _, want := range testEntries {
		e, ok := idx.Lookup(want[0])
		assert.Truef(t, ok, "Lookup(%s) should find the entry", want[0])

		var sb strings.Builder
		_, err = e.WriteTo(&sb)
		assert.NoErrorf(t, err, "WriteTo(...) error = %v", err)
		assert.Equal(t, want[1], sb.String())
	}
	assert.Greater(t, client.gets, listGets)
}
