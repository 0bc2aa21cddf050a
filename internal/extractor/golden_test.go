package extractor

import (
	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/bytesutil"
	"github.com/discgc/gcfst/internal/fst"
)

// goldenISO is a small, hand-assembled but format-correct ISO image used by
// both the full and selective extractor tests: a real header, a minimal
// AppLoader.ldr/Start.dol pair whose internal size fields are consistent
// with their actual extents, an FST, and two file payloads.
type goldenISO struct {
	buf       []byte
	isoHdr    []byte
	appLoader []byte
	dol       []byte
	menuData  []byte
	sfxData   []byte
}

func buildGoldenISO() (*goldenISO, error) {
	isoHdr := make([]byte, gcfst.IsoHdrSize)
	copy(isoHdr, "GALE01")

	const codeSize, trailerSize = 0x10, 0x0
	appLoaderLen := bytesutil.Align(codeSize+trailerSize, gcfst.AppLoaderAlignmentBits)
	appLoader := make([]byte, appLoaderLen)
	for i := range appLoader {
		appLoader[i] = 0xAA
	}
	// The code/trailer size words live within the app loader's own header
	// bytes; AppLoaderExtent reads them to derive the blob's extent, so they
	// must be consistent with appLoaderLen.
	bytesutil.PutBE32At(appLoader, gcfst.AppLoaderCodeSizeOffset-gcfst.IsoHdrSize, codeSize)
	bytesutil.PutBE32At(appLoader, gcfst.AppLoaderTrailerSizeOffset-gcfst.IsoHdrSize, trailerSize)

	const dolSegOff, dolSegSize = 0xd8, 0x40
	dolLen := int64(dolSegOff + dolSegSize)
	dol := make([]byte, dolLen)
	bytesutil.PutBE32At(dol, 0, dolSegOff)                                      // segment 0 offset table
	bytesutil.PutBE32At(dol, gcfst.DolSegmentSizeTableOffset, dolSegSize)       // segment 0 size table
	for i := range dol {
		if i >= dolSegOff {
			dol[i] = 0xBB
		}
	}

	hdrStart, hdrEnd := bootregion.IsoHdrExtent()
	appStart := hdrEnd
	appEnd := appStart + appLoaderLen
	dolOffset := bytesutil.Align(appEnd, gcfst.BootSegmentAlignmentBits)
	dolEnd := dolOffset + dolLen
	fstOffset := bytesutil.Align(dolEnd, gcfst.BootSegmentAlignmentBits)

	menuData := []byte("menu hps contents")
	sfxData := []byte("hit sfx contents")
	events := fst.Events{
		fst.PushDirEvent("audio"),
		fst.FileEvent("menu.hps", 0, int64(len(menuData))),
		fst.PushDirEvent("sfx"),
		fst.FileEvent("hit.hps", 0, int64(len(sfxData))),
		fst.PopDirEvent(),
		fst.PopDirEvent(),
	}

	placeholder, err := fst.Serialize(events, fstOffset)
	if err != nil {
		return nil, err
	}
	fstSize := int64(len(placeholder))

	cursor := fstOffset + fstSize
	for i := range events {
		if events[i].Kind != fst.File {
			continue
		}
		off := bytesutil.Align(cursor, gcfst.FileContentsAlignmentBits)
		events[i].DataOffset = off
		cursor = off + events[i].Size
	}
	total := cursor

	fstBytes, err := fst.Serialize(events, fstOffset)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, total)
	copy(buf[hdrStart:hdrEnd], isoHdr)
	copy(buf[appStart:appEnd], appLoader)
	copy(buf[dolOffset:dolEnd], dol)
	copy(buf[fstOffset:fstOffset+fstSize], fstBytes)
	for _, ev := range events {
		if ev.Kind != fst.File {
			continue
		}
		switch ev.Name {
		case "menu.hps":
			copy(buf[ev.DataOffset:ev.DataOffset+ev.Size], menuData)
		case "hit.hps":
			copy(buf[ev.DataOffset:ev.DataOffset+ev.Size], sfxData)
		}
	}

	hi := bootregion.HeaderInfo{DolOffset: dolOffset, FSTOffset: fstOffset, FSTSize: fstSize, MaxFSTSize: fstSize}
	if err := bootregion.WriteHeaderInfo(buf, hi); err != nil {
		return nil, err
	}
	// ISO.hdr spans the header-info words just written, so the expected
	// blob is the patched header as it sits in the image.
	isoHdr = append([]byte(nil), buf[hdrStart:hdrEnd]...)

	return &goldenISO{
		buf:       buf,
		isoHdr:    isoHdr,
		appLoader: appLoader,
		dol:       dol,
		menuData:  menuData,
		sfxData:   sfxData,
	}, nil
}
