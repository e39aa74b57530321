// Package zipx offers the high-level operations most callers want: compress a
// file or directory into an archive, or extract an archive to disk, with
// progress reporting and cancellable contexts.
//
// The underlying codec packages remain available for anything finer grained:
// [github.com/zippkg/zipp/zipw] to write, [github.com/zippkg/zipp/cd] and
// [github.com/zippkg/zipp/scan] to read.
package zipx

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
)

const (
	// DefaultBufferSize is the default copy buffer length, 32 KiB.
	DefaultBufferSize = 32 * 1024
)

// WalkRegularFiles is a specialisation of filepath.WalkDir that applies the
// callback only to regular files.
func WalkRegularFiles(ctx context.Context, root string, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			// ctx.Err is not supposed to return nil here if ctx.Done() is closed.
			if err = ctx.Err(); err == nil {
				return filepath.SkipAll
			}
			return err
		default:
			break
		}

		switch {
		case err != nil, d.IsDir(), !d.Type().IsRegular():
			return err
		default:
			return fn(path, d)
		}
	})
}

// copyWithReport is a cancellable io.Copy that reports progress after every
// successful write.
func copyWithReport(ctx context.Context, w io.Writer, r io.Reader, buf []byte, pr ProgressReporter, src, dst string) (err error) {
	if buf == nil {
		buf = make([]byte, DefaultBufferSize)
	}

	var nr, nw int
	var written int64
	for {
		nr, err = r.Read(buf)

		if nr > 0 {
			switch nw, err = w.Write(buf[0:nr]); {
			case err != nil:
				return err
			case nw < nr:
				return io.ErrShortWrite
			case nw != nr:
				return fmt.Errorf("invalid write: expected to write %d bytes, wrote %d bytes instead", nr, nw)
			}

			written += int64(nw)

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				if pr != nil {
					pr(src, dst, written, false)
				}
			}
		}

		if err == io.EOF {
			if pr != nil {
				pr(src, dst, written, true)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// rel is a smarter filepath.Rel that returns the original path if it fails.
func rel(basepath, path string) string {
	v, err := filepath.Rel(basepath, path)
	if err != nil {
		return path
	}

	return filepath.Join(filepath.Base(basepath), v)
}
