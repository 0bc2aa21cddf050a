package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/renameio"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/builder"
)

const rebuildHelp = `gcfst rebuild <root path> [iso path]

Build a full ISO from a previously extracted root directory. iso path
defaults to out.iso.

Example:
  % gcfst rebuild root melee-rebuilt.iso
`

func rebuild(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("rebuild", flag.ExitOnError)
	fset.Usage = usage(fset, rebuildHelp)
	fset.Parse(args)
	if fset.NArg() < 1 || fset.NArg() > 2 {
		fset.Usage()
		os.Exit(2)
	}
	rootDir := fset.Arg(0)
	outPath := "out.iso"
	if fset.NArg() == 2 {
		outPath = fset.Arg(1)
	}

	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "building %s from %s\n", outPath, rootDir)
	}
	buf, err := builder.Build(rootDir)
	if err != nil {
		return xerrors.Errorf("build: %w", err)
	}

	// Stage the output in a temp file next to outPath and rename it into
	// place only once the full RomSize buffer has been flushed, so a
	// crash mid-write never leaves a truncated file at outPath.
	t, err := renameio.TempFile("", outPath)
	if err != nil {
		return xerrors.Errorf("creating temp file: %v", err)
	}
	defer t.Cleanup()
	gcfst.RegisterAtExit(func() error { t.Cleanup(); return nil })
	if _, err := t.Write(buf); err != nil {
		return xerrors.Errorf("writing %s: %v", outPath, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("replacing %s: %v", outPath, err)
	}
	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, "done")
	}
	return nil
}
