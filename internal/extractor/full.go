// Package extractor implements the full extractor and the selective
// extractor. Both walk an FST event stream
// (internal/fst) while maintaining a path stack; the full extractor writes
// every entry to the host filesystem, while the selective extractor only
// streams payloads the caller asked for.
package extractor

import (
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/fst"
)

// fileTarget is one File event resolved to its host destination path.
type fileTarget struct {
	hostPath   string
	dataOffset int64
	size       int64
}

// Extract writes every entry described by buf's FST to rootDir, which must
// not exist or must be empty (so an extraction never merges into unrelated
// files), then writes the three boot blobs under rootDir/&&systemdata.
func Extract(buf []byte, rootDir string) error {
	if int64(len(buf)) > gcfst.RomSize {
		return xerrors.Errorf("buffer of %d bytes exceeds RomSize: %w", len(buf), gcfst.ErrInvalidISO)
	}
	if err := ensureEmptyOrAbsent(rootDir); err != nil {
		return err
	}

	hi, err := bootregion.ReadHeaderInfo(buf)
	if err != nil {
		return xerrors.Errorf("reading header info: %w", err)
	}
	events, err := fst.Read(buf, hi.FSTOffset)
	if err != nil {
		return xerrors.Errorf("reading FST: %w", err)
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return &gcfst.PathError{Op: "CreateDir", Path: rootDir, Err: err}
	}

	var targets []fileTarget
	pathStack := []string{rootDir}
	for _, ev := range events {
		cur := pathStack[len(pathStack)-1]
		switch ev.Kind {
		case fst.PushDir:
			dir := filepath.Join(cur, ev.Name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &gcfst.PathError{Op: "CreateDir", Path: dir, Err: err}
			}
			pathStack = append(pathStack, dir)
		case fst.PopDir:
			pathStack = pathStack[:len(pathStack)-1]
		case fst.File:
			targets = append(targets, fileTarget{
				hostPath:   filepath.Join(cur, ev.Name),
				dataOffset: ev.DataOffset,
				size:       ev.Size,
			})
		}
	}

	if err := writeTargetsConcurrently(buf, targets); err != nil {
		return err
	}

	return extractSystemData(buf, rootDir)
}

// writeTargetsConcurrently copies each target's payload slice from buf to
// its host path, bounded by a worker pool so a disc with thousands of
// small files doesn't serialize entirely on host filesystem latency.
func writeTargetsConcurrently(buf []byte, targets []fileTarget) error {
	const workers = 16
	g := new(errgroup.Group)
	sem := make(chan struct{}, workers)
	for _, t := range targets {
		t := t
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if t.dataOffset < 0 || t.dataOffset+t.size > int64(len(buf)) {
				return xerrors.Errorf("file %q extent out of range: %w", t.hostPath, gcfst.ErrInvalidISO)
			}
			if err := os.WriteFile(t.hostPath, buf[t.dataOffset:t.dataOffset+t.size], 0o644); err != nil {
				return &gcfst.PathError{Op: "WriteFile", Path: t.hostPath, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

func extractSystemData(buf []byte, rootDir string) error {
	sysDir := filepath.Join(rootDir, gcfst.SystemDataDirName)
	if err := os.MkdirAll(sysDir, 0o755); err != nil {
		return &gcfst.PathError{Op: "CreateDir", Path: sysDir, Err: err}
	}

	hdrStart, hdrEnd := bootregion.IsoHdrExtent()
	if err := writeBlob(buf, sysDir, gcfst.IsoHdrName, hdrStart, hdrEnd); err != nil {
		return err
	}

	appStart, appEnd, err := bootregion.AppLoaderExtent(buf)
	if err != nil {
		return err
	}
	if err := writeBlob(buf, sysDir, gcfst.AppLoaderName, appStart, appEnd); err != nil {
		return err
	}

	hi, err := bootregion.ReadHeaderInfo(buf)
	if err != nil {
		return err
	}
	dolStart, dolEnd, err := bootregion.DolExtent(buf, hi.DolOffset)
	if err != nil {
		return err
	}
	return writeBlob(buf, sysDir, gcfst.DolName, dolStart, dolEnd)
}

func writeBlob(buf []byte, dir, name string, start, end int64) error {
	if start < 0 || end > int64(len(buf)) || end < start {
		return xerrors.Errorf("%s extent [%d,%d) out of range: %w", name, start, end, gcfst.ErrInvalidISO)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf[start:end], 0o644); err != nil {
		return &gcfst.PathError{Op: "WriteFile", Path: path, Err: err}
	}
	return nil
}

func ensureEmptyOrAbsent(rootDir string) error {
	entries, err := os.ReadDir(rootDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &gcfst.PathError{Op: "ReadDir", Path: rootDir, Err: err}
	}
	if len(entries) > 0 {
		return xerrors.Errorf("%s: %w", rootDir, gcfst.ErrRootDirNotEmpty)
	}
	return nil
}
