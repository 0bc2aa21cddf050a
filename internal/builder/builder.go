// Package builder implements the full ISO builder: given a host directory
// tree (as produced by the full extractor), lays out the boot region, FST,
// and payloads to produce a fresh ISO of exactly gcfst.RomSize bytes.
package builder

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/bytesutil"
	"github.com/discgc/gcfst/internal/fst"
)

// buildEvent pairs an FST event with the host path backing it, for File
// events only; hostPath is empty for PushDir/PopDir.
type buildEvent struct {
	ev       fst.Event
	hostPath string
}

// Build walks rootDir and returns a buffer of exactly gcfst.RomSize bytes.
// It stages the image in an in-memory writerseeker.WriterSeeker rather
// than a plain []byte because the header-info patch and the final FST
// write both seek backward over already-written regions.
func Build(rootDir string) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}

	sysDir := filepath.Join(rootDir, gcfst.SystemDataDirName)
	dolOffset, pos, err := writeBootRegion(ws, sysDir)
	if err != nil {
		return nil, err
	}
	fstOffset := pos

	events, err := walkTree(rootDir)
	if err != nil {
		return nil, err
	}
	fstEvents := make(fst.Events, len(events))
	for i, be := range events {
		fstEvents[i] = be.ev
	}

	// Size the FST first so payload offsets (which start right after it)
	// are known before any payload bytes are written.
	placeholder, err := fst.Serialize(fstEvents, fstOffset)
	if err != nil {
		return nil, xerrors.Errorf("sizing FST: %w", err)
	}
	fstSize := int64(len(placeholder))

	cursor := fstOffset + fstSize
	for i := range fstEvents {
		if fstEvents[i].Kind != fst.File {
			continue
		}
		off := bytesutil.Align(cursor, gcfst.FileContentsAlignmentBits)
		fstEvents[i].DataOffset = off
		cursor = off + fstEvents[i].Size
	}
	if cursor > gcfst.RomSize {
		return nil, xerrors.Errorf("payload region would end at %d, exceeding RomSize %d: %w", cursor, int64(gcfst.RomSize), gcfst.ErrISOTooLarge)
	}

	fstBytes, err := fst.Serialize(fstEvents, fstOffset)
	if err != nil {
		return nil, xerrors.Errorf("serializing FST: %w", err)
	}
	if int64(len(fstBytes)) != fstSize {
		return nil, xerrors.Errorf("FST size changed between sizing and final pass (%d vs %d): %w", len(fstBytes), fstSize, gcfst.ErrInvalidISO)
	}

	// Reserve the FST region with zeros now; it is overwritten below once
	// file payloads (and therefore the final byte-exact FST) are written.
	if _, err := ws.Write(make([]byte, fstSize)); err != nil {
		return nil, err
	}

	writePos := fstOffset + fstSize
	for i, be := range events {
		if fstEvents[i].Kind != fst.File {
			continue
		}
		if err := writePadding(ws, fstEvents[i].DataOffset-writePos); err != nil {
			return nil, err
		}
		writePos = fstEvents[i].DataOffset
		data, err := ioutil.ReadFile(be.hostPath)
		if err != nil {
			return nil, &gcfst.PathError{Op: "ReadFile", Path: be.hostPath, Err: err}
		}
		if int64(len(data)) != fstEvents[i].Size {
			return nil, xerrors.Errorf("%s changed size during build: %w", be.hostPath, gcfst.ErrInvalidFSPath)
		}
		if _, err := ws.Write(data); err != nil {
			return nil, err
		}
		writePos += int64(len(data))
	}

	if err := writePadding(ws, gcfst.RomSize-writePos); err != nil {
		return nil, err
	}

	hi := bootregion.HeaderInfo{DolOffset: dolOffset, FSTOffset: fstOffset, FSTSize: fstSize, MaxFSTSize: fstSize}
	if err := patchAt(ws, fstOffset, fstBytes); err != nil {
		return nil, err
	}
	var hdr [16]byte
	bytesutil.PutBE32At(hdr[:], 0, uint32(hi.DolOffset))
	bytesutil.PutBE32At(hdr[:], 4, uint32(hi.FSTOffset))
	bytesutil.PutBE32At(hdr[:], 8, uint32(hi.FSTSize))
	bytesutil.PutBE32At(hdr[:], 12, uint32(hi.MaxFSTSize))
	if err := patchAt(ws, gcfst.HeaderInfoOffset, hdr[:]); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadAll(ws.Reader())
	if err != nil {
		return nil, xerrors.Errorf("reading assembled ISO: %w", err)
	}
	if int64(len(buf)) != gcfst.RomSize {
		return nil, xerrors.Errorf("assembled ISO is %d bytes, want %d: %w", len(buf), int64(gcfst.RomSize), gcfst.ErrInvalidISO)
	}
	return buf, nil
}

func writePadding(w io.Writer, n int64) error {
	if n < 0 {
		return xerrors.Errorf("negative padding %d requested: %w", n, gcfst.ErrInvalidISO)
	}
	if n == 0 {
		return nil
	}
	const chunk = 1 << 20
	zeros := make([]byte, chunk)
	for n > 0 {
		k := n
		if k > chunk {
			k = chunk
		}
		if _, err := w.Write(zeros[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func patchAt(ws *writerseeker.WriterSeeker, offset int64, b []byte) error {
	if _, err := ws.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := ws.Write(b)
	return err
}

// writeBootRegion appends ISO.hdr, AppLoader.ldr (8-byte aligned), and
// Start.dol (8-byte aligned), returning dol_offset and the position
// immediately after Start.dol's padding (the fst_offset).
func writeBootRegion(ws *writerseeker.WriterSeeker, sysDir string) (dolOffset, fstOffset int64, err error) {
	hdr, err := readBlob(sysDir, gcfst.IsoHdrName)
	if err != nil {
		return 0, 0, err
	}
	if _, err := ws.Write(hdr); err != nil {
		return 0, 0, err
	}
	pos := int64(len(hdr))

	app, err := readBlob(sysDir, gcfst.AppLoaderName)
	if err != nil {
		return 0, 0, err
	}
	if _, err := ws.Write(app); err != nil {
		return 0, 0, err
	}
	pos += int64(len(app))
	dolOffset = bytesutil.Align(pos, gcfst.BootSegmentAlignmentBits)
	if err := writePadding(ws, dolOffset-pos); err != nil {
		return 0, 0, err
	}

	dol, err := readBlob(sysDir, gcfst.DolName)
	if err != nil {
		return 0, 0, err
	}
	if _, err := ws.Write(dol); err != nil {
		return 0, 0, err
	}
	pos = dolOffset + int64(len(dol))
	fstOffset = bytesutil.Align(pos, gcfst.BootSegmentAlignmentBits)
	if err := writePadding(ws, fstOffset-pos); err != nil {
		return 0, 0, err
	}
	return dolOffset, fstOffset, nil
}

func readBlob(sysDir, name string) ([]byte, error) {
	p := filepath.Join(sysDir, name)
	b, err := ioutil.ReadFile(p)
	if err != nil {
		return nil, &gcfst.PathError{Op: "ReadFile", Path: p, Err: err}
	}
	return b, nil
}

// walkTree walks rootDir (excluding gcfst.SystemDataDirName) in depth-first
// order, sorting each directory's children case-insensitively before
// emitting: ioutil.ReadDir's byte-order sort is not sufficient, the FST
// format requires ASCII case-insensitive sibling order.
func walkTree(dir string) ([]buildEvent, error) {
	fis, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, &gcfst.PathError{Op: "ReadDir", Path: dir, Err: err}
	}
	var names []os.FileInfo
	for _, fi := range fis {
		if fi.Name() == gcfst.SystemDataDirName {
			continue
		}
		names = append(names, fi)
	}
	sort.Slice(names, func(i, j int) bool {
		return bytesutil.LessFoldASCII(names[i].Name(), names[j].Name())
	})

	var events []buildEvent
	for _, fi := range names {
		child := filepath.Join(dir, fi.Name())
		if fi.IsDir() {
			events = append(events, buildEvent{ev: fst.PushDirEvent(fi.Name())})
			sub, err := walkTree(child)
			if err != nil {
				return nil, err
			}
			events = append(events, sub...)
			events = append(events, buildEvent{ev: fst.PopDirEvent()})
			continue
		}
		events = append(events, buildEvent{
			ev:       fst.FileEvent(fi.Name(), 0, fi.Size()),
			hostPath: child,
		})
	}
	return events, nil
}
