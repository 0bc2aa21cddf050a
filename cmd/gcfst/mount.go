package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/gcfuse"
)

const mountHelp = `gcfst mount <iso path> <mountpoint>

Mount an ISO read-only at mountpoint until interrupted (Ctrl-C) or
unmounted. Directory listings and file reads are served straight from the
ISO's FST; nothing is extracted to disk.

Example:
  % gcfst mount melee.iso /mnt/melee
`

func mount(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	fset.Usage = usage(fset, mountHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		fset.Usage()
		os.Exit(2)
	}
	isoPath := fset.Arg(0)
	mountpoint := fset.Arg(1)

	fsys, err := gcfuse.Open(isoPath)
	if err != nil {
		return xerrors.Errorf("opening %s: %w", isoPath, err)
	}
	gcfst.RegisterAtExit(func() error { return fsys.Close() })

	server := fuseutil.NewFileSystemServer(fsys)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "gcfst",
		ReadOnly: true,
	})
	if err != nil {
		return xerrors.Errorf("mounting %s: %w", mountpoint, err)
	}
	gcfst.RegisterAtExit(func() error { fuse.Unmount(mountpoint); return nil })

	if !*quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "mounted %s at %s; press Ctrl-C to unmount\n", isoPath, mountpoint)
	}

	go func() {
		<-ctx.Done()
		fuse.Unmount(mountpoint)
	}()

	if err := mfs.Join(context.Background()); err != nil {
		return xerrors.Errorf("serving %s: %w", mountpoint, err)
	}
	return nil
}
