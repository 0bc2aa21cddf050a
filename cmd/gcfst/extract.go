package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst/internal/extractor"
)

const extractHelp = `gcfst extract <iso path>

Fully extract an ISO's filesystem and boot region into ./root/, which must
not exist or must be empty.

Example:
  % gcfst extract melee.iso
`

func extract(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("extract", flag.ExitOnError)
	fset.Usage = usage(fset, extractHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}
	isoPath := fset.Arg(0)

	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "reading %s\n", isoPath)
	}
	buf, err := os.ReadFile(isoPath)
	if err != nil {
		return xerrors.Errorf("reading ISO: %v", err)
	}

	if err := extractor.Extract(buf, "root"); err != nil {
		return xerrors.Errorf("extract: %w", err)
	}
	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, "done")
	}
	return nil
}
