package main

import (
	"context"
	"flag"
	"os"
	"regexp"

	"golang.org/x/xerrors"
)

const setHeaderHelp = `gcfst set-header <path> <game-id> [title]

Overwrite the 6-byte game ID at offset 0 (format AAAA99) and, if given, the
title (at most 31 bytes) at offset 0x20.

Example:
  % gcfst set-header melee.iso GALE01 "Super Smash Bros. Melee"
`

// Game IDs are four uppercase letters (game code) followed by two digits
// (maker code).
var gameIDPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{2}$`)

const maxTitleLen = 0x1f

func setHeader(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("set-header", flag.ExitOnError)
	fset.Usage = usage(fset, setHeaderHelp)
	fset.Parse(args)
	if fset.NArg() < 2 || fset.NArg() > 3 {
		fset.Usage()
		os.Exit(2)
	}
	path := fset.Arg(0)
	gameID := fset.Arg(1)
	if !gameIDPattern.MatchString(gameID) {
		return xerrors.Errorf("invalid game ID %q: want 4 uppercase letters followed by 2 digits", gameID)
	}
	var title string
	if fset.NArg() == 3 {
		title = fset.Arg(2)
		if len(title) > maxTitleLen {
			return xerrors.Errorf("title %q is %d bytes, want at most %d", title, len(title), maxTitleLen)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return xerrors.Errorf("opening %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte(gameID), 0); err != nil {
		return xerrors.Errorf("writing game ID: %v", err)
	}
	if title != "" {
		if _, err := f.WriteAt([]byte(title), 0x20); err != nil {
			return xerrors.Errorf("writing title: %v", err)
		}
	}
	return nil
}
