// Package s3reader adapts ranged S3 GetObject calls to the standard reader
// interfaces so that archives stored in S3 can be scanned and extracted
// without downloading them first.
package s3reader

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Reader uses ranged GetObject to implement sequential and positional reads.
type Reader interface {
	io.Reader
	io.ReaderAt
}

// ReaderClient abstracts the API that is needed to implement Reader.
type ReaderClient interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options customises New, NewReadSeeker and NewReadSeekerWithSize.
type Options struct {
	// CtxFn returns a context.Context to be used with every GetObject or
	// HeadObject call.
	//
	// By default, context.Background is used.
	CtxFn func() context.Context

	// ModifyGetObjectInput can be used to modify the GetObject input
	// parameters such as adding ExpectedBucketOwner.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput

	// ModifyHeadObjectInput can be used to modify the HeadObject input
	// parameters. Only NewReadSeeker makes a HeadObject call.
	ModifyHeadObjectInput func(*s3.HeadObjectInput) *s3.HeadObjectInput
}

func newOptions(optFns []func(*Options)) *Options {
	opts := &Options{
		CtxFn: context.Background,
		ModifyGetObjectInput: func(input *s3.GetObjectInput) *s3.GetObjectInput {
			return input
		},
		ModifyHeadObjectInput: func(input *s3.HeadObjectInput) *s3.HeadObjectInput {
			return input
		},
	}
	for _, fn := range optFns {
		fn(opts)
	}
	return opts
}

// New returns a Reader with the given bucket and key.
func New(client ReaderClient, bucket, key string, optFns ...func(*Options)) Reader {
	opts := newOptions(optFns)

	return &reader{
		client: client,
		bucket: bucket,
		key:    key,
		opts:   opts,
	}
}

const bufferSize = 64 * 1024

type reader struct {
	client      ReaderClient
	bucket, key string
	opts        *Options
	off         int64
	buf         bytes.Buffer
}

func (o *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// top up the readahead buffer once it can no longer satisfy p in full.
	if o.buf.Len() <= len(p) {
		if err := o.fill(len(p)); err != nil {
			return 0, err
		}
	}
	if o.buf.Len() == 0 {
		return 0, io.EOF
	}

	n, err := o.buf.Read(p)
	o.off += int64(n)
	return n, err
}

// fill issues one ranged GetObject appending to the readahead buffer. The
// range starts right after the buffered bytes and spans at least want bytes
// and at least bufferSize; past the end of the object S3 simply returns a
// shorter body.
func (o *reader) fill(want int) error {
	if want < bufferSize {
		want = bufferSize
	}
	start := o.off + int64(o.buf.Len())
	end := o.off + int64(want) - 1

	out, err := o.client.GetObject(o.opts.CtxFn(), o.opts.ModifyGetObjectInput(&s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	}))
	if err != nil {
		return err
	}

	_, err = o.buf.ReadFrom(out.Body)
	if cerr := out.Body.Close(); err == nil {
		err = cerr
	}
	return err
}

func (o *reader) ReadAt(p []byte, off int64) (n int, err error) {
	m := int64(len(p))
	if m == 0 {
		return 0, nil
	}

	getObjectOutput, err := o.client.GetObject(o.opts.CtxFn(), o.opts.ModifyGetObjectInput(&s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+m-1)),
	}))
	if err != nil {
		return 0, err
	}

	n, err = io.ReadFull(getObjectOutput.Body, p)
	_ = getObjectOutput.Body.Close()
	if err == io.ErrUnexpectedEOF {
		// a range request past the end returns a short body.
		err = io.EOF
	}
	return
}
