package zipx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/zipw"
)

// CompressOptions customises CompressFile and CompressDir.
type CompressOptions struct {
	// ProgressReporter controls how progress is reported.
	//
	// By default, DefaultProgressReporter is used.
	ProgressReporter ProgressReporter

	// BufferSize is the length of the buffer used for copying files into
	// the archive. It indirectly controls how frequently ProgressReporter
	// is called.
	//
	// Default to DefaultBufferSize.
	BufferSize int

	// NewWriter allows customisation of the zipw.Writer being used.
	//
	// Default to a plain [zipw.NewWriter].
	NewWriter func(w io.Writer) *zipw.Writer
}

// WithNoCompression uses a writer whose deflate compressor stores bytes
// without compressing.
func WithNoCompression(opts *CompressOptions) {
	opts.NewWriter = NewWriterWithDeflateLevel(flate.NoCompression)
}

// WithBestCompression uses a writer whose deflate compressor trades speed for
// ratio.
func WithBestCompression(opts *CompressOptions) {
	opts.NewWriter = NewWriterWithDeflateLevel(flate.BestCompression)
}

// NewWriterWithDeflateLevel is a CompressOptions.NewWriter that registers a
// deflate compressor with the given level on the writer.
//
// See [flate.NewWriter] on the acceptable levels, for example
// [flate.BestCompression].
func NewWriterWithDeflateLevel(level int) func(w io.Writer) *zipw.Writer {
	return func(w io.Writer) *zipw.Writer {
		return zipw.NewWriter(w, func(opts *zipw.Options) {
			opts.Compressors = map[uint16]zipp.Compressor{
				zipp.Deflate: func(w io.Writer) (io.WriteCloser, error) {
					return flate.NewWriter(w, level)
				},
			}
		})
	}
}

// CompressFile compresses a single file (specified by name) to the archive
// opened as dst.
func CompressFile(ctx context.Context, name string, dst io.Writer, optFns ...func(*CompressOptions)) error {
	opts := newCompressOptions(optFns)

	zw := opts.NewWriter(dst)

	src, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open src file error: %w", err)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf("describe src file error: %w", err)
	}

	f, err := zw.CreateHeader(fileHeader(fi, fi.Name()))
	if err != nil {
		return fmt.Errorf("create file header error: %w", err)
	}

	buf := make([]byte, opts.BufferSize)
	if err = copyWithReport(ctx, f, src, buf, opts.ProgressReporter, name, fi.Name()); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("add src file to archive error: %w", err)
	}

	if err = zw.CloseEntry(); err != nil {
		return err
	}
	return zw.Finish()
}

// CompressDirOptions customises CompressDir.
type CompressDirOptions struct {
	CompressOptions

	// UnwrapRoot drops the directory's own name from the archived paths,
	// so its contents sit at the archive's top level.
	UnwrapRoot bool

	// WriteDir writes directory entries to the archive.
	WriteDir bool
}

// CompressDir compresses a directory recursively to the archive opened as
// dst.
//
// By default the archived paths keep the directory's base name as their root;
// [CompressDirOptions.UnwrapRoot] drops it. Directory entries are skipped
// unless [CompressDirOptions.WriteDir] is set.
func CompressDir(ctx context.Context, dir string, dst io.Writer, optFns ...func(*CompressDirOptions)) error {
	opts := &CompressDirOptions{CompressOptions: *newCompressOptions(nil)}
	for _, fn := range optFns {
		fn(opts)
	}

	zw := opts.NewWriter(dst)

	archivePath := func(path string) (string, error) {
		return filepath.Rel(dir, path)
	}
	if !opts.UnwrapRoot {
		base := filepath.Base(dir)
		archivePath = func(path string) (name string, err error) {
			name, err = filepath.Rel(dir, path)
			return filepath.Join(base, name), err
		}
	}

	buf := make([]byte, opts.BufferSize)
	pr := opts.ProgressReporter

	err := filepath.WalkDir(dir, func(srcPath string, d fs.DirEntry, err error) error {
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

		var fi os.FileInfo

		switch {
		case err != nil:
			return fmt.Errorf("walk dir error: %w", err)

		case d.IsDir():
			if !opts.WriteDir {
				return nil
			}

			fi, err = d.Info()
			if err != nil {
				return fmt.Errorf("describe directory (path=%s) error: %w", srcPath, err)
			}

			dstPath, err := archivePath(srcPath)
			if err != nil {
				return fmt.Errorf("compute directory (path=%s) name in archive error: %w", srcPath, err)
			} else if dstPath == "." {
				return nil
			}

			if _, err = zw.CreateHeader(fileHeader(fi, dstPath+"/")); err != nil {
				return fmt.Errorf("create record (name=%s) for directory (path=%s) error: %w", dstPath, srcPath, err)
			}
			if err = zw.CloseEntry(); err != nil {
				return err
			}

			if pr != nil {
				pr(rel(dir, srcPath), dstPath, 0, true)
			}
			return nil

		case d.Type().IsRegular():
			fi, err = d.Info()
			if err != nil {
				return fmt.Errorf("describe file (path=%s) error: %w", srcPath, err)
			}

			src, err := os.Open(srcPath)
			if err != nil {
				return fmt.Errorf("open file (path=%s) error: %w", srcPath, err)
			}
			defer src.Close()

			dstPath, err := archivePath(srcPath)
			if err != nil {
				return fmt.Errorf("compute file (path=%s) name in archive error: %w", srcPath, err)
			}

			f, err := zw.CreateHeader(fileHeader(fi, dstPath))
			if err != nil {
				return fmt.Errorf("create record (name=%s) for file (path=%s) error: %w", dstPath, srcPath, err)
			}

			if err = copyWithReport(ctx, f, src, buf, pr, rel(dir, srcPath), dstPath); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return fmt.Errorf("add file (path=%s) to archive (name=%s) error: %w", srcPath, dstPath, err)
			}

			return zw.CloseEntry()

		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	return zw.Finish()
}

func newCompressOptions(optFns []func(*CompressOptions)) *CompressOptions {
	opts := &CompressOptions{
		ProgressReporter: DefaultProgressReporter,
		BufferSize:       DefaultBufferSize,
		NewWriter: func(w io.Writer) *zipw.Writer {
			return zipw.NewWriter(w)
		},
	}
	for _, fn := range optFns {
		fn(opts)
	}
	return opts
}

func fileHeader(fi os.FileInfo, name string) *zipp.FileHeader {
	fh := &zipp.FileHeader{
		Name:     strings.ReplaceAll(name, `\`, "/"),
		Method:   zipp.Deflate,
		Modified: fi.ModTime(),
	}
	if fh.IsDir() {
		fh.Method = zipp.Store
	}
	fh.SetMode(fi.Mode())
	return fh
}
