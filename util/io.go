package util

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// CopyBufferWithContext is io.CopyBuffer with a cancellation check after every
// successful write.
func CopyBufferWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (written int64, err error) {
	if buf == nil {
		buf = make([]byte, 32*1024)
	}

	var nr, nw int
	for {
		nr, err = src.Read(buf)

		if nr > 0 {
			switch nw, err = dst.Write(buf[0:nr]); {
			case err != nil:
				return written, err
			case nw < nr:
				return written, io.ErrShortWrite
			case nw != nr:
				return written, fmt.Errorf("invalid write: expected to write %d bytes, wrote %d bytes instead", nr, nw)
			}

			select {
			case <-ctx.Done():
				return written, ctx.Err()
			default:
				written += int64(nr)
			}
		}

		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// ChainCloser makes sure all the close functions are called at least once and
// accumulates their errors, first error first.
func ChainCloser(fn1 func() error, fns ...func() error) func() error {
	return func() error {
		var err *multierror.Error
		err = multierror.Append(err, fn1())

		for _, fn := range fns {
			err = multierror.Append(err, fn())
		}

		return err.ErrorOrNil()
	}
}
