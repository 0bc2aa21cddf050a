package fst

import (
	"strings"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bytesutil"
	"golang.org/x/xerrors"
)

// Serialize packs events into FST bytes (entries followed by the string
// pool), ready to be placed at fstOffset. File events must already carry
// their final DataOffset/Size: the caller (full builder or in-place
// editor) is responsible for allocating payload offsets, since the two
// callers do so under very different constraints (sequential 32 KiB-aligned
// append vs. first-fit bin-packing into existing free space).
//
// Each directory's next_index covers its entire subtree, not just its
// immediate children, so it can only be written once the subtree has been
// emitted: a stack of open entry indices is popped and patched on PopDir.
func Serialize(events Events, fstOffset int64) ([]byte, error) {
	entryCount := int64(1) // root
	poolSize := int64(0)
	depth := 0
	for _, ev := range events {
		switch ev.Kind {
		case PushDir, File:
			if err := validateName(ev.Name); err != nil {
				return nil, err
			}
			entryCount++
			poolSize += int64(len(ev.Name)) + 1
			if ev.Kind == PushDir {
				depth++
			}
		case PopDir:
			depth--
			if depth < 0 {
				return nil, xerrors.Errorf("unbalanced PopDir event: %w", gcfst.ErrInvalidISO)
			}
		}
	}
	if depth != 0 {
		return nil, xerrors.Errorf("event stream has %d unclosed directories: %w", depth, gcfst.ErrInvalidISO)
	}

	fstSize := gcfst.FSTEntrySize*entryCount + poolSize
	buf := make([]byte, fstSize)
	entries := buf[:gcfst.FSTEntrySize*entryCount]
	pool := buf[gcfst.FSTEntrySize*entryCount:]
	// Names start at pool offset 0; the root entry's zero name offset aliases
	// the first name, which no reader ever dereferences for the root.
	poolOff := int64(0)

	var stack []int64 // entry indices of directories still open
	i := int64(1)
	for _, ev := range events {
		switch ev.Kind {
		case PushDir:
			nameOff := putName(pool, &poolOff, ev.Name)
			if nameOff > 0x00ffffff {
				return nil, xerrors.Errorf("string pool exceeds 24-bit offset range: %w", gcfst.ErrInvalidFilename)
			}
			var parent uint32
			if len(stack) > 0 {
				parent = uint32(stack[len(stack)-1])
			}
			writeEntry(entries, i, gcfst.DirEntryFlag, uint32(nameOff), parent, 0)
			stack = append(stack, i)
			i++
		case PopDir:
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			// next_index is the entry index immediately after this
			// directory's whole subtree, i.e. the running index now.
			patchWord2(entries, idx, uint32(i))
		case File:
			nameOff := putName(pool, &poolOff, ev.Name)
			if nameOff > 0x00ffffff {
				return nil, xerrors.Errorf("string pool exceeds 24-bit offset range: %w", gcfst.ErrInvalidFilename)
			}
			writeEntry(entries, i, 0, uint32(nameOff), uint32(ev.DataOffset), uint32(ev.Size))
			i++
		}
	}
	writeEntry(entries, 0, gcfst.DirEntryFlag, 0, 0, uint32(entryCount))
	return buf, nil
}

func validateName(name string) error {
	if name == "" {
		return xerrors.Errorf("empty name: %w", gcfst.ErrInvalidFilename)
	}
	if name == gcfst.SystemDataDirName {
		return xerrors.Errorf("reserved name %q not allowed in FST: %w", name, gcfst.ErrInvalidISOPath)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return xerrors.Errorf("name %q contains a NUL byte: %w", name, gcfst.ErrInvalidFilename)
	}
	return nil
}

func putName(pool []byte, off *int64, name string) int64 {
	start := *off
	copy(pool[start:], name)
	pool[start+int64(len(name))] = 0
	*off = start + int64(len(name)) + 1
	return start
}

// writeEntry writes the 12-byte entry at index i. typeFlag is fused into
// the high byte of nameOffset per the format's overlay trick.
func writeEntry(entries []byte, i int64, typeFlag byte, nameOffset, word1, word2 uint32) {
	off := gcfst.FSTEntrySize * i
	w0 := uint32(typeFlag)<<24 | (nameOffset & 0x00ffffff)
	bytesutil.PutBE32At(entries, off, w0)
	bytesutil.PutBE32At(entries, off+4, word1)
	bytesutil.PutBE32At(entries, off+8, word2)
}

// patchWord2 overwrites a directory entry's next_index field after the
// fact, once its subtree has been fully emitted.
func patchWord2(entries []byte, i int64, word2 uint32) {
	off := gcfst.FSTEntrySize*i + 8
	bytesutil.PutBE32At(entries, off, word2)
}
