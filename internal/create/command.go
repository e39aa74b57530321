package create

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/zippkg/zipp/util"
	"github.com/zippkg/zipp/zipx"
)

type Command struct {
	Store      bool   `short:"0" long:"store" description:"store files without compressing"`
	Best       bool   `short:"9" long:"best" description:"trade speed for compression ratio"`
	Output     string `short:"o" long:"output" description:"name of the archive to create; only valid with a single file or directory argument"`
	UnwrapRoot bool   `long:"unwrap-root" description:"when compressing a directory, place its contents at the archive's top level instead of under the directory's name"`
	WriteDir   bool   `long:"write-dir" description:"when compressing a directory, also write directory entries to the archive"`
	NoProgress bool   `short:"q" long:"no-progress" description:"do not render a progress bar"`
	Args       struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the local files or directories to be compressed, each into its own archive" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}
	if c.Store && c.Best {
		return fmt.Errorf("--store and --best are mutually exclusive")
	}
	if c.Output != "" && len(c.Args.Files) != 1 {
		return fmt.Errorf("--output requires exactly one file or directory argument")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		output, err := c.compress(ctx, string(file))
		if err == nil {
			log.Printf(`%d/%d: successfully compressed "%s" to "%s"`, i+1, n, file, output)
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		log.Printf(`%d/%d: compress "%s" error: %v`, i+1, n, file, err)
	}

	log.Printf("successfully compressed %d/%d archives", success, n)
	return nil
}

func (c *Command) compress(ctx context.Context, name string) (string, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return "", err
	}

	stem := filepath.Base(name)
	if !fi.IsDir() {
		stem, _ = util.StemAndExt(name)
	}

	dst, output, err := c.createArchive(stem)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if !fi.IsDir() {
		err = zipx.CompressFile(ctx, name, dst, c.compressOptions(nil))
	} else {
		pr := zipx.DefaultProgressReporter
		if !c.NoProgress {
			if pr, err = zipx.NewProgressBarReporter(ctx, name, nil); err != nil {
				_ = os.Remove(output)
				return "", fmt.Errorf("count dir contents error: %w", err)
			}
		}

		err = zipx.CompressDir(ctx, name, dst, func(opts *zipx.CompressDirOptions) {
			c.compressOptions(pr)(&opts.CompressOptions)
			opts.UnwrapRoot = c.UnwrapRoot
			opts.WriteDir = c.WriteDir
		})
	}
	if err != nil {
		_ = os.Remove(output)
		return "", err
	}

	if err = dst.Close(); err != nil {
		_ = os.Remove(output)
		return "", err
	}
	return output, nil
}

func (c *Command) compressOptions(pr zipx.ProgressReporter) func(*zipx.CompressOptions) {
	return func(opts *zipx.CompressOptions) {
		switch {
		case c.Store:
			zipx.WithNoCompression(opts)
		case c.Best:
			zipx.WithBestCompression(opts)
		}
		if pr != nil {
			opts.ProgressReporter = pr
		}
	}
}

// createArchive creates "<stem>.zip" exclusively, appending -1, -2 and so on
// to the stem if the name is taken.
func (c *Command) createArchive(stem string) (*os.File, string, error) {
	if c.Output != "" {
		f, err := os.OpenFile(c.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		return f, c.Output, err
	}

	f, err := util.OpenExclFile(".", stem, ".zip", 0644)
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}
