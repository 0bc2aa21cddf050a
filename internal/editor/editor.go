package editor

import (
	"io"
	"os"
	"strings"

	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/fst"
)

// OpKind distinguishes the two batch operations the editor accepts.
type OpKind int

const (
	OpInsert OpKind = iota
	OpDelete
)

// Op is one element of a batch passed to Apply.
type Op struct {
	Kind      OpKind
	IsoPath   string
	InputPath string // set for OpInsert
}

func Insert(isoPath, inputPath string) Op { return Op{Kind: OpInsert, IsoPath: isoPath, InputPath: inputPath} }
func Delete(isoPath string) Op            { return Op{Kind: OpDelete, IsoPath: isoPath} }

// pendingInsert tracks one Insert op through the batch: a later Delete (or a
// repeated Insert) of the same path cancels it, which excludes it from the
// rewritten TOC without suppressing its payload write.
type pendingInsert struct {
	op        Op
	parts     []string
	cancelled bool
}

func isBootName(isoPath string) bool {
	name := strings.Trim(isoPath, "/")
	return name == gcfst.IsoHdrName || name == gcfst.AppLoaderName || name == gcfst.DolName
}

// Apply performs a batch of insert/delete operations on iso in place. iso
// must be open read-write; Apply seeks freely within it.
// Phases 1-3 are pure with respect to the file's contents: a failure
// there leaves iso untouched. Once phase 4 begins, insert payloads are
// written to free space before the TOC is rewritten, so a crash leaves the
// old TOC (still internally consistent) pointing at the old payloads.
func Apply(iso *os.File, ops []Op) error {
	var bootOps, rest []Op
	for _, op := range ops {
		if op.Kind == OpInsert && isBootName(op.IsoPath) {
			bootOps = append(bootOps, op)
		} else {
			rest = append(rest, op)
		}
	}

	hi, err := bootregion.ReadHeaderInfoAt(iso)
	if err != nil {
		return xerrors.Errorf("reading header info: %w", err)
	}
	fstBuf := make([]byte, hi.FSTSize)
	if _, err := iso.ReadAt(fstBuf, hi.FSTOffset); err != nil && err != io.EOF {
		return xerrors.Errorf("reading FST region: %w: %v", gcfst.ErrInvalidISO, err)
	}
	events, err := fst.Read(fstBuf, 0)
	if err != nil {
		return xerrors.Errorf("reading FST: %w", err)
	}
	root, err := buildTree(events)
	if err != nil {
		return xerrors.Errorf("building FST tree: %w", err)
	}

	// Phase 3.1: deletion sweep, in batch order. An Insert of a path that
	// already exists implicitly deletes the old entry first; that case is
	// allowed to no-op when nothing is there yet, and an Insert repeating
	// an earlier batch Insert's path supersedes it. An
	// explicit Delete resolves against the tree first, then against inserts
	// earlier in the batch: deleting a just-inserted path cancels that
	// insert's TOC entry, though its payload bytes are still written below.
	// A Delete matching neither is an error: there is nothing implicit about
	// it, and a caller asking to remove a specific file deserves to know it
	// was never there.
	var pending []*pendingInsert
	for _, op := range rest {
		parts, err := splitPath(op.IsoPath)
		if err != nil {
			return err
		}
		n, err := deleteFile(root, op.IsoPath)
		if err != nil {
			return err
		}
		if op.Kind == OpInsert {
			for _, pi := range pending {
				if !pi.cancelled && samePathParts(pi.parts, parts) {
					pi.cancelled = true
				}
			}
			pending = append(pending, &pendingInsert{op: op, parts: parts})
			continue
		}
		if n != nil {
			continue
		}
		cancelled := false
		for _, pi := range pending {
			if !pi.cancelled && samePathParts(pi.parts, parts) {
				pi.cancelled = true
				cancelled = true
				break
			}
		}
		if !cancelled {
			return xerrors.Errorf("%s: %w", op.IsoPath, gcfst.ErrInvalidISOPath)
		}
	}

	// Phase 3.2: empty-directory collapse.
	collapseEmptyDirs(root)

	// Phase 3.3: free-space map over surviving payloads.
	var used []extent
	collectFileExtents(root, &used)
	free := buildFreeSpaceMap(used)

	// Phase 3.4 + 3.5: mkdir synthesis, sorted insertion, and first-fit
	// bin-packing, in caller-supplied batch order. Cancelled inserts are
	// still packed and written (their bytes land in free space and become
	// orphans), then dropped from the tree before the TOC is serialized.
	var inserted []*node
	inputPaths := map[*node]string{}
	for _, pi := range pending {
		fi, err := os.Stat(pi.op.InputPath)
		if err != nil {
			return &gcfst.PathError{Op: "ReadFile", Path: pi.op.InputPath, Err: err}
		}
		n, err := mkdirAndInsert(root, pi.op.IsoPath, fi.Size())
		if err != nil {
			return err
		}
		inserted = append(inserted, n)
		inputPaths[n] = pi.op.InputPath
	}
	if err := firstFit(free, inserted); err != nil {
		return err
	}
	for _, pi := range pending {
		if !pi.cancelled {
			continue
		}
		if _, err := deleteFile(root, pi.op.IsoPath); err != nil {
			return err
		}
	}
	collapseEmptyDirs(root)

	// Phase 4, step 2: serialize and validate against TOCTooLarge before
	// any bytes are written.
	fstEvents := flatten(root)
	fstBytes, err := fst.Serialize(fstEvents, hi.FSTOffset)
	if err != nil {
		return xerrors.Errorf("serializing FST: %w", err)
	}
	var final []extent
	collectFileExtents(root, &final)
	dataStart := int64(gcfst.RomSize)
	for _, e := range final {
		if e.start < dataStart {
			dataStart = e.start
		}
	}
	if int64(len(fstBytes)) > dataStart-hi.FSTOffset {
		return xerrors.Errorf("FST would grow to %d bytes, overrunning first payload at %d: %w", len(fstBytes), dataStart, gcfst.ErrTOCTooLarge)
	}

	// Phase 4, step 1: stream insert payloads to their assigned offsets.
	for _, n := range inserted {
		if err := copyInto(iso, n.dataOffset, inputPaths[n]); err != nil {
			return err
		}
	}

	// Phase 4, step 3: write the TOC and patch the header.
	if _, err := iso.WriteAt(fstBytes, hi.FSTOffset); err != nil {
		return xerrors.Errorf("writing FST: %v", err)
	}
	hi.FSTSize = int64(len(fstBytes))
	hi.MaxFSTSize = hi.FSTSize
	if err := bootregion.WriteHeaderInfoAt(iso, hi); err != nil {
		return err
	}

	// Phase 4, step 4: boot-region replacements, computed against the
	// pre-replacement header (offsets/sizes derived from the disc itself,
	// not from the FST, so they are unaffected by the TOC rewrite above).
	return applyBootReplacements(iso, hi, bootOps)
}

func copyInto(iso *os.File, offset int64, inputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return &gcfst.PathError{Op: "ReadFile", Path: inputPath, Err: err}
	}
	defer in.Close()
	if _, err := io.Copy(&offsetWriter{w: iso, off: offset}, in); err != nil {
		return &gcfst.PathError{Op: "WriteFile", Path: inputPath, Err: err}
	}
	return nil
}

// offsetWriter adapts an io.WriterAt to io.Writer at a fixed, advancing
// offset, so io.Copy can stream a host file into the ISO without loading
// it fully into memory.
type offsetWriter struct {
	w   io.WriterAt
	off int64
}

func (o *offsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.WriteAt(p, o.off)
	o.off += int64(n)
	return n, err
}

func applyBootReplacements(iso *os.File, hi bootregion.HeaderInfo, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	byName := map[string]string{}
	for _, op := range ops {
		byName[strings.Trim(op.IsoPath, "/")] = op.InputPath
	}
	if p, ok := byName[gcfst.IsoHdrName]; ok {
		start, _ := bootregion.IsoHdrExtent()
		if err := copyInto(iso, start, p); err != nil {
			return err
		}
	}
	if p, ok := byName[gcfst.AppLoaderName]; ok {
		start, _, err := bootregion.AppLoaderExtentAt(iso)
		if err != nil {
			return err
		}
		if err := copyInto(iso, start, p); err != nil {
			return err
		}
	}
	if p, ok := byName[gcfst.DolName]; ok {
		start, _, err := bootregion.DolExtentAt(iso, hi.DolOffset)
		if err != nil {
			return err
		}
		if err := copyInto(iso, start, p); err != nil {
			return err
		}
	}
	return nil
}
