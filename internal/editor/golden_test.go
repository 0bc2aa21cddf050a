package editor

import (
	"os"
	"testing"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/bytesutil"
	"github.com/discgc/gcfst/internal/fst"
)

// goldenEditorISO mirrors internal/extractor's golden fixture: a real
// header, a minimal but internally-consistent AppLoader.ldr/Start.dol pair,
// and a small FST with some slack after the payload region so inserts have
// somewhere to land.
type goldenEditorISO struct {
	f         *os.File
	hi        bootregion.HeaderInfo
	menuData  []byte
	oldData   []byte
	appLoader []byte
}

func buildGoldenEditorISO(t *testing.T) *goldenEditorISO {
	t.Helper()

	isoHdr := make([]byte, gcfst.IsoHdrSize)

	const codeSize, trailerSize = 0x10, 0x0
	appLoaderLen := bytesutil.Align(codeSize+trailerSize, gcfst.AppLoaderAlignmentBits)
	appLoader := make([]byte, appLoaderLen)
	bytesutil.PutBE32At(appLoader, gcfst.AppLoaderCodeSizeOffset-gcfst.IsoHdrSize, codeSize)
	bytesutil.PutBE32At(appLoader, gcfst.AppLoaderTrailerSizeOffset-gcfst.IsoHdrSize, trailerSize)

	const dolSegOff, dolSegSize = 0xd8, 0x40
	dol := make([]byte, dolSegOff+dolSegSize)
	bytesutil.PutBE32At(dol, 0, dolSegOff)
	bytesutil.PutBE32At(dol, gcfst.DolSegmentSizeTableOffset, dolSegSize)

	hdrStart, hdrEnd := bootregion.IsoHdrExtent()
	appStart := hdrEnd
	appEnd := appStart + appLoaderLen
	dolOffset := bytesutil.Align(appEnd, gcfst.BootSegmentAlignmentBits)
	dolEnd := dolOffset + int64(len(dol))
	fstOffset := bytesutil.Align(dolEnd, gcfst.BootSegmentAlignmentBits)

	menuData := []byte("menu hps contents")
	oldData := []byte("old file contents")
	events := fst.Events{
		fst.PushDirEvent("audio"),
		fst.FileEvent("menu.hps", 0, int64(len(menuData))),
		fst.PopDirEvent(),
		fst.FileEvent("old.bin", 0, int64(len(oldData))),
	}

	placeholder, err := fst.Serialize(events, fstOffset)
	if err != nil {
		t.Fatalf("fst.Serialize (sizing): %v", err)
	}
	// Leave generous room for the FST to grow after inserts before it would
	// reach the first payload.
	fstSize := int64(len(placeholder)) + 4*gcfst.FSTEntrySize + 256

	cursor := fstOffset + fstSize
	for i := range events {
		if events[i].Kind != fst.File {
			continue
		}
		off := bytesutil.Align(cursor, gcfst.FileContentsAlignmentBits)
		events[i].DataOffset = off
		cursor = off + events[i].Size
	}
	// Extra slack after the last payload for new inserts to bin-pack into.
	total := cursor + 4*(1<<gcfst.FileContentsAlignmentBits)

	fstBytes, err := fst.Serialize(events, fstOffset)
	if err != nil {
		t.Fatalf("fst.Serialize: %v", err)
	}
	if int64(len(fstBytes)) > fstSize {
		t.Fatalf("reserved fstSize %d too small for serialized FST of %d bytes", fstSize, len(fstBytes))
	}

	buf := make([]byte, total)
	copy(buf[hdrStart:hdrEnd], isoHdr)
	copy(buf[appStart:appEnd], appLoader)
	copy(buf[dolOffset:dolEnd], dol)
	copy(buf[fstOffset:fstOffset+int64(len(fstBytes))], fstBytes)
	for _, ev := range events {
		if ev.Kind != fst.File {
			continue
		}
		switch ev.Name {
		case "menu.hps":
			copy(buf[ev.DataOffset:ev.DataOffset+ev.Size], menuData)
		case "old.bin":
			copy(buf[ev.DataOffset:ev.DataOffset+ev.Size], oldData)
		}
	}

	hi := bootregion.HeaderInfo{DolOffset: dolOffset, FSTOffset: fstOffset, FSTSize: fstSize, MaxFSTSize: fstSize}
	if err := bootregion.WriteHeaderInfo(buf, hi); err != nil {
		t.Fatalf("WriteHeaderInfo: %v", err)
	}

	f, err := os.CreateTemp(t.TempDir(), "golden-*.iso")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("writing golden ISO: %v", err)
	}

	return &goldenEditorISO{f: f, hi: hi, menuData: menuData, oldData: oldData, appLoader: appLoader}
}

func (g *goldenEditorISO) readEvents(t *testing.T) fst.Events {
	t.Helper()
	hi, err := bootregion.ReadHeaderInfoAt(g.f)
	if err != nil {
		t.Fatalf("ReadHeaderInfoAt: %v", err)
	}
	buf := make([]byte, hi.FSTSize)
	if _, err := g.f.ReadAt(buf, hi.FSTOffset); err != nil {
		t.Fatalf("ReadAt FST: %v", err)
	}
	events, err := fst.Read(buf, 0)
	if err != nil {
		t.Fatalf("fst.Read: %v", err)
	}
	return events
}
