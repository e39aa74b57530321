package s3reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReadSeeker is a Reader over an object of known size, which additionally
// allows seeking. Seeking is what archive scans need to find the trailing
// directory records.
type ReadSeeker interface {
	io.ReadSeeker
	io.ReaderAt

	// Size returns the object's size in bytes.
	Size() int64
}

// ReadSeekerClient abstracts the APIs that are needed to implement ReadSeeker.
type ReadSeekerClient interface {
	ReaderClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewReadSeeker returns a ReadSeeker with the given bucket and key, using a
// HeadObject call to determine the object's size.
func NewReadSeeker(client ReadSeekerClient, bucket, key string, optFns ...func(*Options)) (ReadSeeker, error) {
	opts := newOptions(optFns)

	headObjectOutput, err := client.HeadObject(opts.CtxFn(), opts.ModifyHeadObjectInput(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}))
	if err != nil {
		return nil, fmt.Errorf("determine object size error: %w", err)
	}

	return &readSeeker{
		reader: reader{client: client, bucket: bucket, key: key, opts: opts},
		size:   aws.ToInt64(headObjectOutput.ContentLength),
	}, nil
}

// NewReadSeekerWithSize returns a ReadSeeker with the given bucket, key and
// known size, making no HeadObject call.
func NewReadSeekerWithSize(client ReaderClient, bucket, key string, size int64, optFns ...func(*Options)) ReadSeeker {
	return &readSeeker{
		reader: reader{client: client, bucket: bucket, key: key, opts: newOptions(optFns)},
		size:   size,
	}
}

type readSeeker struct {
	reader
	size int64
}

func (r *readSeeker) Size() int64 {
	return r.size
}

func (r *readSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += r.off
	case io.SeekEnd:
		offset += r.size
	}
	if offset < 0 {
		return 0, errors.New("seek before start of object")
	}

	r.off = offset
	r.buf.Reset()
	return offset, nil
}
