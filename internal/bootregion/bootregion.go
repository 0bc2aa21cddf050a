// Package bootregion locates and reads/writes the fixed-offset boot blobs
// (ISO.hdr, AppLoader.ldr, Start.dol) and the four header words at
// gcfst.HeaderInfoOffset that describe where the FST lives: a handful of
// fixed-offset fields read once up front and used to derive the position
// of everything else in the image.
package bootregion

import (
	"io"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bytesutil"
	"golang.org/x/xerrors"
)

// HeaderInfo holds the four words at gcfst.HeaderInfoOffset.
type HeaderInfo struct {
	DolOffset  int64
	FSTOffset  int64
	FSTSize    int64
	MaxFSTSize int64
}

// ReadHeaderInfo reads the four header words from buf.
func ReadHeaderInfo(buf []byte) (HeaderInfo, error) {
	if int64(len(buf)) < gcfst.HeaderInfoOffset+16 {
		return HeaderInfo{}, xerrors.Errorf("buffer too short for header info: %w", gcfst.ErrInvalidISO)
	}
	base := int64(gcfst.HeaderInfoOffset)
	return HeaderInfo{
		DolOffset:  int64(bytesutil.BE32At(buf, base)),
		FSTOffset:  int64(bytesutil.BE32At(buf, base+4)),
		FSTSize:    int64(bytesutil.BE32At(buf, base+8)),
		MaxFSTSize: int64(bytesutil.BE32At(buf, base+12)),
	}, nil
}

// WriteHeaderInfo writes hi's fields into buf at gcfst.HeaderInfoOffset.
func WriteHeaderInfo(buf []byte, hi HeaderInfo) error {
	if int64(len(buf)) < gcfst.HeaderInfoOffset+16 {
		return xerrors.Errorf("buffer too short for header info: %w", gcfst.ErrInvalidISO)
	}
	base := int64(gcfst.HeaderInfoOffset)
	bytesutil.PutBE32At(buf, base, uint32(hi.DolOffset))
	bytesutil.PutBE32At(buf, base+4, uint32(hi.FSTOffset))
	bytesutil.PutBE32At(buf, base+8, uint32(hi.FSTSize))
	bytesutil.PutBE32At(buf, base+12, uint32(hi.MaxFSTSize))
	return nil
}

// IsoHdrExtent is the fixed byte range of ISO.hdr.
func IsoHdrExtent() (start, end int64) {
	return 0, gcfst.IsoHdrSize
}

// AppLoaderExtent computes AppLoader.ldr's byte range from the code/trailer
// size words at the start of AppLoader.ldr itself (image offsets
// gcfst.AppLoaderCodeSizeOffset and gcfst.AppLoaderTrailerSizeOffset).
func AppLoaderExtent(buf []byte) (start, end int64, err error) {
	if int64(len(buf)) < gcfst.AppLoaderTrailerSizeOffset+4 {
		return 0, 0, xerrors.Errorf("buffer too short for AppLoader.ldr size fields: %w", gcfst.ErrInvalidISO)
	}
	codeSize := int64(bytesutil.BE32At(buf, gcfst.AppLoaderCodeSizeOffset))
	trailerSize := int64(bytesutil.BE32At(buf, gcfst.AppLoaderTrailerSizeOffset))
	start = gcfst.IsoHdrSize
	end = start + bytesutil.Align(codeSize+trailerSize, gcfst.AppLoaderAlignmentBits)
	return start, end, nil
}

// DolExtent computes Start.dol's byte range by scanning its 18-entry
// segment offset/size table; the DOL's own offset and size tables are
// relative to dolOffset itself.
func DolExtent(buf []byte, dolOffset int64) (start, end int64, err error) {
	segTableEnd := dolOffset + gcfst.DolSegmentSizeTableOffset + gcfst.DolSegmentCount*4
	if segTableEnd > int64(len(buf)) {
		return 0, 0, xerrors.Errorf("buffer too short for DOL segment table: %w", gcfst.ErrInvalidISO)
	}
	maxEnd := int64(0)
	for i := int64(0); i < gcfst.DolSegmentCount; i++ {
		segOffset := int64(bytesutil.BE32At(buf, dolOffset+4*i))
		segSize := int64(bytesutil.BE32At(buf, dolOffset+gcfst.DolSegmentSizeTableOffset+4*i))
		if e := segOffset + segSize; e > maxEnd {
			maxEnd = e
		}
	}
	return dolOffset, dolOffset + maxEnd, nil
}

// readAtFull reads exactly len(b) bytes at off from r, wrapping a short
// read as InvalidISO the way an unexpectedly truncated ISO file would be.
func readAtFull(r io.ReaderAt, off int64, b []byte) error {
	n, err := r.ReadAt(b, off)
	if err != nil && !(err == io.EOF && n == len(b)) {
		return xerrors.Errorf("read at %d: %w: %v", off, gcfst.ErrInvalidISO, err)
	}
	return nil
}

// WriteHeaderInfoAt is WriteHeaderInfo's io.WriterAt counterpart, used by
// the in-place editor to patch fst_size/max_fst_size after a rewrite.
func WriteHeaderInfoAt(w io.WriterAt, hi HeaderInfo) error {
	var b [16]byte
	bytesutil.PutBE32At(b[:], 0, uint32(hi.DolOffset))
	bytesutil.PutBE32At(b[:], 4, uint32(hi.FSTOffset))
	bytesutil.PutBE32At(b[:], 8, uint32(hi.FSTSize))
	bytesutil.PutBE32At(b[:], 12, uint32(hi.MaxFSTSize))
	if _, err := w.WriteAt(b[:], gcfst.HeaderInfoOffset); err != nil {
		return xerrors.Errorf("writing header info: %v", err)
	}
	return nil
}

// ReadHeaderInfoAt is ReadHeaderInfo's counterpart for callers streaming
// from an io.ReaderAt (a random-access *os.File) rather than holding the
// whole ISO in memory, used by the selective extractor and the editor.
func ReadHeaderInfoAt(r io.ReaderAt) (HeaderInfo, error) {
	var b [16]byte
	if err := readAtFull(r, gcfst.HeaderInfoOffset, b[:]); err != nil {
		return HeaderInfo{}, err
	}
	return HeaderInfo{
		DolOffset:  int64(bytesutil.BE32At(b[:], 0)),
		FSTOffset:  int64(bytesutil.BE32At(b[:], 4)),
		FSTSize:    int64(bytesutil.BE32At(b[:], 8)),
		MaxFSTSize: int64(bytesutil.BE32At(b[:], 12)),
	}, nil
}

// AppLoaderExtentAt is AppLoaderExtent's io.ReaderAt counterpart.
func AppLoaderExtentAt(r io.ReaderAt) (start, end int64, err error) {
	var b [4]byte
	if err := readAtFull(r, gcfst.AppLoaderCodeSizeOffset, b[:]); err != nil {
		return 0, 0, err
	}
	codeSize := int64(bytesutil.BE32At(b[:], 0))
	if err := readAtFull(r, gcfst.AppLoaderTrailerSizeOffset, b[:]); err != nil {
		return 0, 0, err
	}
	trailerSize := int64(bytesutil.BE32At(b[:], 0))
	start = gcfst.IsoHdrSize
	end = start + bytesutil.Align(codeSize+trailerSize, gcfst.AppLoaderAlignmentBits)
	return start, end, nil
}

// DolExtentAt is DolExtent's io.ReaderAt counterpart.
func DolExtentAt(r io.ReaderAt, dolOffset int64) (start, end int64, err error) {
	var segs [gcfst.DolSegmentCount * 4]byte
	if err := readAtFull(r, dolOffset, segs[:]); err != nil {
		return 0, 0, err
	}
	var sizes [gcfst.DolSegmentCount * 4]byte
	if err := readAtFull(r, dolOffset+gcfst.DolSegmentSizeTableOffset, sizes[:]); err != nil {
		return 0, 0, err
	}
	maxEnd := int64(0)
	for i := int64(0); i < gcfst.DolSegmentCount; i++ {
		segOffset := int64(bytesutil.BE32At(segs[:], 4*i))
		segSize := int64(bytesutil.BE32At(sizes[:], 4*i))
		if e := segOffset + segSize; e > maxEnd {
			maxEnd = e
		}
	}
	return dolOffset, dolOffset + maxEnd, nil
}
