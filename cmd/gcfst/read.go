package main

import (
	"context"
	"flag"
	"os"

	"golang.org/x/xerrors"

	"github.com/discgc/gcfst/internal/extractor"
)

const readHelp = `gcfst read <iso path> (<iso path> <out path>)...

Selectively extract one or more entries from an ISO without extracting the
whole image. Each pair names a path inside the ISO (or one of the reserved
boot-blob names ISO.hdr, AppLoader.ldr, Start.dol) and a destination path
on the host.

Example:
  % gcfst read melee.iso audio/menu.hps menu.hps ISO.hdr ISO.hdr
`

func read(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("read", flag.ExitOnError)
	fset.Usage = usage(fset, readHelp)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) < 3 || (len(rest)-1)%2 != 0 {
		fset.Usage()
		os.Exit(2)
	}
	isoPath := rest[0]
	pairs := rest[1:]

	f, err := os.Open(isoPath)
	if err != nil {
		return xerrors.Errorf("opening %s: %v", isoPath, err)
	}
	defer f.Close()

	var selections []extractor.Selection
	for i := 0; i < len(pairs); i += 2 {
		selections = append(selections, extractor.Selection{IsoPath: pairs[i], OutPath: pairs[i+1]})
	}
	if err := extractor.ExtractSelected(f, selections); err != nil {
		return xerrors.Errorf("read: %w", err)
	}
	return nil
}
