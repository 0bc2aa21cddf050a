package editor

import (
	"sort"

	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bytesutil"
)

// extent is a half-open byte range [start, end).
type extent struct{ start, end int64 }

// freeRange is one entry in the free-space map; start advances as pieces of
// it are consumed by the bin-packer.
type freeRange struct{ start, end int64 }

func (f freeRange) len() int64 { return f.end - f.start }

// buildFreeSpaceMap computes the free-space map over used (surviving file
// extents): sorted gaps between adjacent extents, aligned up at their low
// end, plus a trailing range to RomSize. Unlike a general allocator, it
// does not consider any gap before the first extent, so the region between
// the FST and the first payload is never handed to the bin-packer.
func buildFreeSpaceMap(used []extent) []freeRange {
	sorted := append([]extent(nil), used...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var free []freeRange
	maxEnd := int64(0)
	for i, e := range sorted {
		if e.end > maxEnd {
			maxEnd = e.end
		}
		if i+1 >= len(sorted) {
			continue
		}
		start := bytesutil.Align(e.end, gcfst.FileContentsAlignmentBits)
		end := sorted[i+1].start
		if end > start {
			free = append(free, freeRange{start: start, end: end})
		}
	}
	trailingStart := bytesutil.Align(maxEnd, gcfst.FileContentsAlignmentBits)
	if trailingStart < gcfst.RomSize {
		free = append(free, freeRange{start: trailingStart, end: gcfst.RomSize})
	}
	return free
}

// firstFit assigns data offsets to each inserted file, in the order given,
// walking the free-space map first-fit. Best-fit buys nothing here:
// alignment is coarse, batches are small, and first-fit favors locality
// near the end of the disc where free space accumulates after deletions.
func firstFit(free []freeRange, files []*node) error {
	for _, f := range files {
		placed := false
		for i := range free {
			if free[i].len() < f.size {
				continue
			}
			f.dataOffset = free[i].start
			free[i].start = bytesutil.Align(free[i].start+f.size, gcfst.FileContentsAlignmentBits)
			placed = true
			break
		}
		if !placed {
			return xerrors.Errorf("no free range fits a %d-byte file: %w", f.size, gcfst.ErrISOTooLarge)
		}
	}
	return nil
}
