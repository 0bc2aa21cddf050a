package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst/internal/editor"
)

const fsHelp = `gcfst fs <iso path> (insert <iso path> <host path> | delete <iso path>)...

Apply a batch of insert/delete operations to an ISO in place, without
rewriting unchanged payloads.

Example:
  % gcfst fs melee.iso insert audio/new.hps new.hps delete audio/old.hps
`

func fs(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("fs", flag.ExitOnError)
	fset.Usage = usage(fset, fsHelp)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) < 1 {
		fset.Usage()
		os.Exit(2)
	}
	isoPath := rest[0]

	ops, err := parseFSOps(rest[1:])
	if err != nil {
		return err
	}

	f, err := os.OpenFile(isoPath, os.O_RDWR, 0)
	if err != nil {
		return xerrors.Errorf("opening %s: %v", isoPath, err)
	}
	defer f.Close()

	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "applying %d operations to %s\n", len(ops), isoPath)
	}
	if err := editor.Apply(f, ops); err != nil {
		return xerrors.Errorf("fs: %w", err)
	}
	return nil
}

func parseFSOps(args []string) ([]editor.Op, error) {
	var ops []editor.Op
	for i := 0; i < len(args); {
		switch args[i] {
		case "insert":
			if i+2 >= len(args) {
				return nil, xerrors.Errorf("insert requires <iso path> <host path>")
			}
			ops = append(ops, editor.Insert(args[i+1], args[i+2]))
			i += 3
		case "delete":
			if i+1 >= len(args) {
				return nil, xerrors.Errorf("delete requires <iso path>")
			}
			ops = append(ops, editor.Delete(args[i+1]))
			i += 2
		default:
			return nil, xerrors.Errorf("unknown fs operation %q, want insert or delete", args[i])
		}
	}
	return ops, nil
}
