package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jessevdk/go-flags"
	"github.com/zippkg/zipp/internal/create"
	"github.com/zippkg/zipp/internal/extract"
	"github.com/zippkg/zipp/internal/list"
)

var opts struct {
	Profile string          `short:"p" long:"profile" description:"override AWS_PROFILE if given" default-mask:"-"`
	List    list.Command    `command:"list" alias:"ls" description:"list the contents of local or S3 archives"`
	Extract extract.Command `command:"extract" alias:"x" description:"extract local archives to directories"`
	Create  create.Command  `command:"create" alias:"c" description:"compress files or directories into archives"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		if opts.Profile != "" {
			if err := os.Setenv("AWS_PROFILE", opts.Profile); err != nil {
				return fmt.Errorf("set AWS_PROFILE error: %w", err)
			}
		}

		return command.Execute(args)
	}

	_, err := p.Parse()

	// need this on window to keep the console open.
	if runtime.GOOS == "windows" {
		_, _ = fmt.Fprintf(os.Stderr, "Press any key to close console\n")
		_, _ = fmt.Scanf("h")
	}

	if err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
