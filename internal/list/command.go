package list

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/zippkg/zipp"
	"github.com/zippkg/zipp/cd"
	"github.com/zippkg/zipp/util"
	"github.com/zippkg/zipp/zipenc"
)

type Command struct {
	Encoding string `short:"e" long:"encoding" description:"IANA charset name used to decode names of archives without the UTF-8 flag, e.g. shift_jis or cp437"`
	Long     bool   `short:"l" long:"long" description:"also show compressed sizes and methods"`
	Args     struct {
		Files []flags.Filename `positional-arg-name:"file" description:"the local files or s3://bucket/key URIs of the archives to list" required:"yes"`
	} `positional-args:"yes"`

	client *s3.Client
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	scanOpts := []func(*cd.Options){}
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
		err := c.list(ctx, string(file), scanOpts)
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		log.Printf(`%d/%d: list "%s" error: %v`, i+1, n, file, err)
	}

	if n > 1 {
		log.Printf("successfully listed %d/%d archives", success, n)
	}
	return nil
}

func (c *Command) list(ctx context.Context, name string, scanOpts []func(*cd.Options)) error {
	rec, entries, closeFn, err := c.scan(ctx, name, scanOpts)
	if err != nil {
		return err
	}
	defer closeFn()

	idx, err := cd.NewIndex(rec, entries)
	if err != nil {
		return err
	}
	if idx.Warn != nil {
		log.Printf(`"%s": central directory is truncated, showing %d recovered entries: %v`, name, idx.Len(), idx.Warn)
	}

	if c.Long {
		fmt.Printf("%10s  %10s  %-9s  %-16s  %s\n", "size", "packed", "method", "modified", "name")
	} else {
		fmt.Printf("%10s  %-16s  %s\n", "size", "modified", "name")
	}

	var size, packed uint64
	for _, e := range idx.Entries() {
		size += e.UncompressedSize64
		packed += e.CompressedSize64

		displayName := util.TruncateRightWithSuffix(e.Name, 80, "...")
		if c.Long {
			fmt.Printf("%10s  %10s  %-9s  %-16s  %s\n",
				humanize.IBytes(e.UncompressedSize64),
				humanize.IBytes(e.CompressedSize64),
				zipp.MethodName(e.Method),
				e.Modified.Format("2006-01-02 15:04"),
				displayName)
		} else {
			fmt.Printf("%10s  %-16s  %s\n",
				humanize.IBytes(e.UncompressedSize64),
				e.Modified.Format("2006-01-02 15:04"),
				displayName)
		}
	}

	if comment := idx.Comment(); comment != "" {
		fmt.Printf("comment: %s\n", util.TruncateRightWithSuffix(comment, 120, "..."))
	}
	fmt.Printf("%d entries, %s (%s compressed)\n", idx.Len(), humanize.IBytes(size), humanize.IBytes(packed))
	return nil
}

// scan opens the archive for listing, from S3 when name is an s3:// URI and
// from the local filesystem otherwise.
func (c *Command) scan(ctx context.Context, name string, scanOpts []func(*cd.Options)) (cd.EOCDRecord, iter.Seq2[*cd.Entry, error], func(), error) {
	opts := append([]func(*cd.Options){cd.WithContext(ctx)}, scanOpts...)

	if bucket, key, ok := parseS3URI(name); ok {
		if c.client == nil {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return cd.EOCDRecord{}, nil, nil, fmt.Errorf("load default config error: %w", err)
			}

			c.client = s3.NewFromConfig(cfg, func(options *s3.Options) {
				options.DisableLogOutputChecksumValidationSkipped = true
			})
		}

		rec, entries, err := cd.ScanFromS3(c.client, bucket, key, opts...)
		return rec, entries, func() {}, err
	}

	f, err := os.Open(name)
	if err != nil {
		return cd.EOCDRecord{}, nil, nil, err
	}

	rec, entries, err := cd.Scan(f, opts...)
	if err != nil {
		_ = f.Close()
		return rec, nil, nil, err
	}
	return rec, entries, func() { _ = f.Close() }, nil
}

func parseS3URI(name string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(name, "s3://")
	if !found {
		return "", "", false
	}

	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
