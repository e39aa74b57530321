package cd

import (
	"context"
	"io"
	"iter"

	"github.com/zippkg/zipp/s3reader"
)

// ScanFromS3 scans an archive stored in S3 without downloading it: the
// directory records and any opened payloads are fetched with ranged GetObject
// calls. A HeadObject call determines the object's size first.
//
// Entries read through io.ReaderAt and can be opened concurrently.
func ScanFromS3(client s3reader.ReadSeekerClient, bucket, key string, optFns ...func(*Options)) (EOCDRecord, iter.Seq2[*Entry, error], error) {
	opts := newOptions(optFns)

	src, err := s3reader.NewReadSeeker(client, bucket, key, func(o *s3reader.Options) {
		o.CtxFn = func() context.Context { return opts.Ctx }
	})
	if err != nil {
		return EOCDRecord{}, nil, err
	}

	r, err := findEOCD(io.NewSectionReader(src, 0, src.Size()), opts)
	if err != nil {
		return r, nil, err
	}

	return r, scanEntries(&readerAtSource{ra: src}, r, opts), nil
}
