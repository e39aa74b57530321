package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/zippkg/zipp/cd"
	"github.com/zippkg/zipp/zipenc"
	"github.com/zippkg/zipp/zipx"
)

type Command struct {
	Dir          string `short:"d" long:"dir" description:"parent directory for the extracted contents" default:"."`
	Encoding     string `short:"e" long:"encoding" description:"IANA charset name used to decode names of archives without the UTF-8 flag, e.g. shift_jis or cp437"`
	NoUnwrapRoot bool   `long:"no-unwrap-root" description:"keep the archive's shared top-level directory instead of stripping it"`
	NoOverwrite  bool   `short:"n" long:"no-overwrite" description:"skip files that already exist instead of failing"`
	Args         struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the local .zip files to be extracted" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	var scanOpts []func(*cd.Options)
	if c.Encoding != "" {
		enc, err := zipenc.For(c.Encoding)
		if err != nil {
			return fmt.Errorf("unknown encoding error: %w", err)
		}
		scanOpts = append(scanOpts, cd.WithEncoding(zipenc.Policy{Encoding: enc}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		output, err := zipx.Extract(ctx, string(file), c.Dir, func(opts *zipx.ExtractOptions) {
			opts.NoUnwrapRoot = c.NoUnwrapRoot
			opts.NoOverwrite = c.NoOverwrite
			opts.Scan = scanOpts
		})
		if err == nil {
			log.Printf(`%d/%d: successfully extracted "%s" to "%s"`, i+1, n, file, output)
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		log.Printf(`%d/%d: extract "%s" error: %v`, i+1, n, file, err)
	}

	log.Printf("successfully extracted %d/%d archives", success, n)
	return nil
}
