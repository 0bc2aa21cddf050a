// Command gcfst reads, writes, and surgically edits GameCube disc images.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
)

var (
	debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")
	quiet = flag.Bool("quiet", false, "suppress progress status lines and warnings")
)

// bumpRlimitNOFILE raises RLIMIT_NOFILE to the kernel-allowed maximum
// before a batch (extract/fs) opens a large number of host files in one
// run; a failure here is logged, not fatal.
func bumpRlimitNOFILE() error {
	var fileMax, nrOpen uint64
	{
		b, err := ioutil.ReadFile("/proc/sys/fs/file-max")
		if err != nil {
			return err
		}
		fileMax, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	{
		b, err := ioutil.ReadFile("/proc/sys/fs/nr_open")
		if err != nil {
			return err
		}
		nrOpen, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	max := fileMax
	if nrOpen < max {
		max = nrOpen
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: max, Max: max})
}

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	type verbEntry = cmd
	verbs := map[string]verbEntry{
		"extract":    {extract},
		"rebuild":    {rebuild},
		"set-header": {setHeader},
		"read":       {read},
		"fs":         {fs},
		"mount":      {mount},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: gcfst [-flags] <command> [options]\n")
		fmt.Fprintf(os.Stderr, "commands: extract, rebuild, set-header, read, fs, mount\n")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: gcfst <command> [options]\n")
		os.Exit(2)
	}

	if verb == "extract" || verb == "fs" {
		if err := bumpRlimitNOFILE(); err != nil && !*quiet {
			fmt.Fprintf(os.Stderr, "warning: bumping RLIMIT_NOFILE failed: %v\n", err)
		}
	}

	ctx, canc := gcfst.InterruptibleContext()
	defer canc()
	if err := v.fn(ctx, rest); err != nil {
		if *debug {
			return xerrors.Errorf("%s: %+v", verb, err)
		}
		return xerrors.Errorf("%s: %v", verb, err)
	}
	return gcfst.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
