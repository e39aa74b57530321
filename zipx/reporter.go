package zipx

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressReporter is called to provide updates on individual files.
//
//   - src: path of the file being added to or extracted from the archive
//   - dst: the file's counterpart path on the other side
//   - written: number of bytes copied so far
//   - done: true only once the file has been copied in its entirety
//
// The reporter is called at least once per file; a file small enough to fit
// into one read is reported exactly once with done being true.
type ProgressReporter func(src, dst string, written int64, done bool)

// DefaultProgressReporter only reports a file once it completes, with
// [log.Printf].
func DefaultProgressReporter(src, dst string, written int64, done bool) {
	if done {
		log.Printf(`added "%s" to archive`, dst)
	}
}

// DefaultBytes is equivalent to progressbar.DefaultBytes but with a higher
// progressbar.OptionThrottle.
func DefaultBytes(maxBytes int64, description string, options ...progressbar.Option) *progressbar.ProgressBar {
	return progressbar.NewOptions64(maxBytes,
		append([]progressbar.Option{
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(1 * time.Second),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true)},
			options...)...)
}

// NewProgressBarReporter creates a progress reporter rendering the given
// progressbar.ProgressBar, sized by a preflight walk of root.
//
// If the given progress bar is nil, one is created with DefaultBytes.
func NewProgressBarReporter(ctx context.Context, root string, bar *progressbar.ProgressBar) (ProgressReporter, error) {
	n, size, err := CountDirContents(ctx, root)
	if err != nil {
		return nil, err
	}

	if bar == nil {
		bar = DefaultBytes(size, "compressing")
	} else {
		bar.ChangeMax64(size)
	}

	var totalWritten int64
	var previousSrc string
	return func(src, dst string, written int64, done bool) {
		if previousSrc != src {
			totalWritten = 0
			previousSrc = src
		}

		if _, totalWritten = bar.Add64(written-totalWritten), written; done {
			if n--; n == 0 {
				_ = bar.Close()
			}
		}
	}, nil
}

// CountDirContents uses WalkRegularFiles to count all regular files and
// returns the total size of those files as well.
func CountDirContents(ctx context.Context, root string) (n int, size int64, err error) {
	err = WalkRegularFiles(ctx, root, func(path string, d fs.DirEntry) error {
		n++

		fi, err := d.Info()
		if err != nil {
			return err
		}

		size += fi.Size()
		return nil
	})
	return
}
