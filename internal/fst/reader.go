package fst

import (
	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bytesutil"
	"golang.org/x/xerrors"
)

// entry is one decoded 12-byte FST record. The type flag and the 24-bit
// name offset share the first 32-bit word: the full word is
// (typeFlag<<24)|nameOffset, which caps the string pool at 16 MiB.
type entry struct {
	isDir      bool
	nameOffset uint32
	// word1/word2 are dataOffset/size for a file, parent/nextIndex for a
	// directory.
	word1, word2 uint32
}

func decodeEntry(b []byte) entry {
	w0 := bytesutil.BE32At(b, 0)
	return entry{
		isDir:      w0>>24 == gcfst.DirEntryFlag,
		nameOffset: w0 & 0x00ffffff,
		word1:      bytesutil.BE32At(b, 4),
		word2:      bytesutil.BE32At(b, 8),
	}
}

// Read parses the FST at fstOffset within buf into an ordered event stream
// describing the tree below the root (the root entry itself never appears
// as an event; its sole purpose is to record the total entry count).
func Read(buf []byte, fstOffset int64) (Events, error) {
	if fstOffset < 0 || fstOffset+gcfst.FSTEntrySize > int64(len(buf)) {
		return nil, xerrors.Errorf("fst offset %d out of range: %w", fstOffset, gcfst.ErrInvalidISO)
	}
	root := decodeEntry(buf[fstOffset : fstOffset+gcfst.FSTEntrySize])
	if !root.isDir {
		return nil, xerrors.Errorf("root entry is not a directory: %w", gcfst.ErrInvalidISO)
	}
	entryCount := int64(root.word2)
	if entryCount < 1 {
		return nil, xerrors.Errorf("root next_index %d is not a valid entry count: %w", entryCount, gcfst.ErrInvalidISO)
	}
	stringPoolOffset := fstOffset + gcfst.FSTEntrySize*entryCount
	if stringPoolOffset > int64(len(buf)) {
		return nil, xerrors.Errorf("string pool offset %d past end of buffer (len %d): %w", stringPoolOffset, len(buf), gcfst.ErrInvalidISO)
	}
	pool := buf[stringPoolOffset:]

	var events Events
	var stack []int64 // pending next_index values, one per open directory

	for i := int64(1); i < entryCount; i++ {
		for len(stack) > 0 && stack[len(stack)-1] == i {
			events = append(events, PopDirEvent())
			stack = stack[:len(stack)-1]
		}

		off := fstOffset + gcfst.FSTEntrySize*i
		if off+gcfst.FSTEntrySize > int64(len(buf)) {
			return nil, xerrors.Errorf("entry %d out of range: %w", i, gcfst.ErrInvalidISO)
		}
		e := decodeEntry(buf[off : off+gcfst.FSTEntrySize])
		name, err := bytesutil.CString(pool, int64(e.nameOffset))
		if err != nil {
			return nil, xerrors.Errorf("entry %d: %w: %v", i, gcfst.ErrInvalidISO, err)
		}
		if name == gcfst.SystemDataDirName {
			return nil, xerrors.Errorf("entry %d: reserved name %q present in FST: %w", i, name, gcfst.ErrInvalidISO)
		}

		if e.isDir {
			nextIndex := int64(e.word2)
			if nextIndex <= i || nextIndex > entryCount {
				return nil, xerrors.Errorf("entry %d: next_index %d invalid for entry count %d: %w", i, nextIndex, entryCount, gcfst.ErrInvalidISO)
			}
			events = append(events, PushDirEvent(name))
			stack = append(stack, nextIndex)
		} else {
			events = append(events, FileEvent(name, int64(e.word1), int64(e.word2)))
		}
	}
	for len(stack) > 0 {
		events = append(events, PopDirEvent())
		stack = stack[:len(stack)-1]
	}
	return events, nil
}
