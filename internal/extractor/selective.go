package extractor

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bootregion"
	"github.com/discgc/gcfst/internal/fst"
)

// Selection is one caller-requested (iso path, host destination) pair for
// the selective extractor.
type Selection struct {
	IsoPath string
	OutPath string
}

// ExtractSelected opens r (a random-access ISO, typically an *os.File),
// parses only the FST, and streams exactly the requested entries to their
// destination paths. The three boot blobs are matched by their reserved
// names against the same request list.
func ExtractSelected(r io.ReaderAt, selections []Selection) error {
	byPath := make(map[string][]string, len(selections))
	for _, s := range selections {
		clean := path.Clean("/" + s.IsoPath)
		byPath[clean] = append(byPath[clean], s.OutPath)
	}

	hi, err := bootregion.ReadHeaderInfoAt(r)
	if err != nil {
		return xerrors.Errorf("reading header info: %w", err)
	}

	if outs, ok := byPath["/"+gcfst.IsoHdrName]; ok {
		start, end := bootregion.IsoHdrExtent()
		if err := streamEach(r, start, end-start, outs); err != nil {
			return err
		}
	}
	if outs, ok := byPath["/"+gcfst.AppLoaderName]; ok {
		start, end, err := bootregion.AppLoaderExtentAt(r)
		if err != nil {
			return err
		}
		if err := streamEach(r, start, end-start, outs); err != nil {
			return err
		}
	}
	if outs, ok := byPath["/"+gcfst.DolName]; ok {
		start, end, err := bootregion.DolExtentAt(r, hi.DolOffset)
		if err != nil {
			return err
		}
		if err := streamEach(r, start, end-start, outs); err != nil {
			return err
		}
	}

	fstBuf := make([]byte, hi.FSTSize)
	if _, err := r.ReadAt(fstBuf, hi.FSTOffset); err != nil && err != io.EOF {
		return xerrors.Errorf("reading FST region: %w: %v", gcfst.ErrInvalidISO, err)
	}
	events, err := fst.Read(fstBuf, 0)
	if err != nil {
		return xerrors.Errorf("reading FST: %w", err)
	}

	pathStack := []string{""}
	for _, ev := range events {
		cur := pathStack[len(pathStack)-1]
		switch ev.Kind {
		case fst.PushDir:
			pathStack = append(pathStack, cur+"/"+ev.Name)
		case fst.PopDir:
			pathStack = pathStack[:len(pathStack)-1]
		case fst.File:
			p := cur + "/" + ev.Name
			if outs, ok := byPath[p]; ok {
				if err := streamEach(r, ev.DataOffset, ev.Size, outs); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func streamEach(r io.ReaderAt, offset, size int64, outPaths []string) error {
	for _, out := range outPaths {
		if err := streamOne(r, offset, size, out); err != nil {
			return err
		}
	}
	return nil
}

func streamOne(r io.ReaderAt, offset, size int64, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return &gcfst.PathError{Op: "CreateDir", Path: filepath.Dir(outPath), Err: err}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return &gcfst.PathError{Op: "WriteFile", Path: outPath, Err: err}
	}
	defer f.Close()
	sr := io.NewSectionReader(r, offset, size)
	if _, err := io.Copy(f, sr); err != nil {
		return &gcfst.PathError{Op: "WriteFile", Path: outPath, Err: err}
	}
	return nil
}
