package zipx

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/zippkg/zipp/cd"
	"github.com/zippkg/zipp/util"
)

// ExtractOptions customises Extract.
type ExtractOptions struct {
	// ProgressReporter controls how progress is reported.
	//
	// By default, DefaultProgressReporter is used.
	ProgressReporter ProgressReporter

	// BufferSize is the length of the buffer used for copying files out of
	// the archive.
	//
	// Default to DefaultBufferSize.
	BufferSize int

	// UseGivenDirectory extracts files directly into the dir argument
	// instead of creating a fresh directory under it.
	UseGivenDirectory bool

	// NoUnwrapRoot keeps the archive's common top-level directory instead
	// of stripping it.
	NoUnwrapRoot bool

	// NoOverwrite skips files that already exist at the target instead of
	// overwriting them.
	NoOverwrite bool

	// Scan customises the central directory scan, e.g. to set an encoding
	// for archives with non-UTF-8 names.
	Scan []func(*cd.Options)
}

// Extract extracts the named archive to the given parent directory, returning
// the name of the output directory, which can differ from dir.
//
// Unless [ExtractOptions.UseGivenDirectory] is set, a directory named after
// the archive (suffixed -1, -2 and so on if taken) is created under dir.
// Unless [ExtractOptions.NoUnwrapRoot] is set and the archive's contents
// share a single top-level directory, that root is stripped from the
// extracted paths.
//
// A truncated central directory is not fatal: the recovered entries are
// extracted and the truncation logged.
func Extract(ctx context.Context, src, dir string, optFns ...func(*ExtractOptions)) (string, error) {
	opts := &ExtractOptions{
		ProgressReporter: DefaultProgressReporter,
		BufferSize:       DefaultBufferSize,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanOpts := append([]func(*cd.Options){cd.WithContext(ctx)}, opts.Scan...)
	rec, entries, err := cd.Scan(f, scanOpts...)
	if err != nil {
		return "", err
	}
	idx, err := cd.NewIndex(rec, entries)
	if err != nil {
		return "", err
	}
	if idx.Warn != nil {
		log.Printf("extracting %d recovered entries: %v", idx.Len(), idx.Warn)
	}

	// determine the output directory from options.
	if !opts.UseGivenDirectory {
		stem, _ := util.StemAndExt(src)
		if dir, err = util.MkExclDir(dir, stem, 0755); err != nil {
			return "", err
		}
	}

	// determine whether each path in the archive is trimmed (unwrapping
	// its root).
	trimRoot := func(path string) string {
		return path
	}
	if !opts.NoUnwrapRoot {
		if root := findRoot(idx.Entries()); root != "" {
			prefix := root + "/"
			trimRoot = func(path string) string {
				return strings.TrimPrefix(path, prefix)
			}
		}
	}

	buf := make([]byte, opts.BufferSize)
	pr := opts.ProgressReporter
	for _, e := range idx.Entries() {
		select {
		case <-ctx.Done():
			return dir, ctx.Err()
		default:
			break
		}

		name := trimRoot(e.Name)
		if name == "" {
			continue
		}

		if e.IsDir() {
			if err = os.MkdirAll(filepath.Join(dir, name), dirPerm(e.Mode())); err != nil {
				return dir, err
			}
			continue
		}

		dst, err := createExclFile(filepath.Join(dir, name), e.Mode().Perm())
		if err != nil {
			if opts.NoOverwrite && os.IsExist(err) {
				continue
			}
			return dir, err
		}

		r, err := e.Open()
		if err != nil {
			_ = dst.Close()
			return dir, err
		}

		err = copyWithReport(ctx, dst, r, buf, pr, e.Name, rel(dir, dst.Name()))
		if cerr := util.ChainCloser(dst.Close, r.Close)(); err == nil {
			err = cerr
		}
		if err != nil {
			return dir, err
		}
	}

	return dir, nil
}

// findRoot returns the single top-level directory shared by every entry, or
// the empty string when there is none. Only the first path segment counts: an
// archive whose files all live under "test/" has root "test" even if they
// share a longer prefix.
func findRoot(entries []*cd.Entry) (root string) {
	for _, e := range entries {
		paths := strings.SplitN(e.Name, "/", 2)
		if len(paths) == 1 {
			// a file at top level means there is no root for sure.
			return ""
		}

		switch root {
		case paths[0]:
		case "":
			root = paths[0]
		default:
			return ""
		}
	}

	return
}

// createExclFile creates a new exclusive file for writing and ensures all
// parent directories to the file exist.
//
// Caller must close the file.
func createExclFile(name string, perm fs.FileMode) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return nil, err
	}

	if perm == 0 {
		perm = 0644
	}
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

func dirPerm(mode fs.FileMode) fs.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm
	}
	return 0755
}
