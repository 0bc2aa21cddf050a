package editor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/fst"
)

func writeInput(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestApplyInsertAndDelete(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	newData := []byte("brand new contents")
	newInput := writeInput(t, newData)

	ops := []Op{
		Delete("old.bin"),
		Insert("audio/new.hps", newInput),
	}
	if err := Apply(g.f, ops); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := g.readEvents(t)
	var names []string
	byName := map[string]fst.Event{}
	for _, ev := range events {
		if ev.Kind == fst.File {
			names = append(names, ev.Name)
			byName[ev.Name] = ev
		}
	}
	if _, ok := byName["old.bin"]; ok {
		t.Error("old.bin: still present after delete")
	}
	ev, ok := byName["new.hps"]
	if !ok {
		t.Fatal("new.hps: not present after insert")
	}
	got := make([]byte, ev.Size)
	if _, err := g.f.ReadAt(got, ev.DataOffset); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, newData) {
		t.Errorf("new.hps contents mismatch: got %q, want %q", got, newData)
	}
}

func TestApplyInsertIntoNewDirectory(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	data := []byte("deep file")
	input := writeInput(t, data)
	if err := Apply(g.f, []Op{Insert("video/cutscenes/intro.thp", input)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := g.readEvents(t)
	var sawVideo, sawCutscenes, sawIntro bool
	for _, ev := range events {
		switch {
		case ev.Kind == fst.PushDir && ev.Name == "video":
			sawVideo = true
		case ev.Kind == fst.PushDir && ev.Name == "cutscenes":
			sawCutscenes = true
		case ev.Kind == fst.File && ev.Name == "intro.thp":
			sawIntro = true
		}
	}
	if !sawVideo || !sawCutscenes || !sawIntro {
		t.Fatalf("mkdir synthesis incomplete: video=%v cutscenes=%v intro.thp=%v (events: %+v)", sawVideo, sawCutscenes, sawIntro, events)
	}
}

func TestApplyReplaceExistingPathIsDeleteThenInsert(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	replacement := []byte("replacement contents, different length")
	input := writeInput(t, replacement)
	if err := Apply(g.f, []Op{Insert("audio/menu.hps", input)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := g.readEvents(t)
	var count int
	var found fst.Event
	for _, ev := range events {
		if ev.Kind == fst.File && ev.Name == "menu.hps" {
			count++
			found = ev
		}
	}
	if count != 1 {
		t.Fatalf("menu.hps appears %d times, want 1", count)
	}
	got := make([]byte, found.Size)
	if _, err := g.f.ReadAt(got, found.DataOffset); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, replacement) {
		t.Errorf("menu.hps contents mismatch: got %q, want %q", got, replacement)
	}
}

func TestApplyCollapsesEmptyDirAfterDeletingOnlyChild(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	if err := Apply(g.f, []Op{Delete("audio/menu.hps")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	events := g.readEvents(t)
	for _, ev := range events {
		if ev.Kind == fst.PushDir && ev.Name == "audio" {
			t.Fatalf("audio/ directory still present after its only child was deleted: %+v", events)
		}
	}
}

// readWholeISO snapshots the backing file for before/after comparisons.
func readWholeISO(t *testing.T, f *os.File) []byte {
	t.Helper()
	buf, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", f.Name(), err)
	}
	return buf
}

func TestApplyInsertThenDeleteSameBatchRestoresFST(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	before := g.readEvents(t)
	input := writeInput(t, []byte("transient contents"))
	if err := Apply(g.f, []Op{Insert("a/b.dat", input), Delete("a/b.dat")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	after := g.readEvents(t)
	if len(after) != len(before) {
		t.Fatalf("event count changed: %d -> %d (after: %+v)", len(before), len(after), after)
	}
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("events[%d] = %+v, want %+v", i, after[i], before[i])
		}
	}
}

func TestApplyRejectsInsertBeyondCapacity(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)
	before := readWholeISO(t, g.f)

	bigPath := filepath.Join(t.TempDir(), "big.bin")
	big, err := os.Create(bigPath)
	if err != nil {
		t.Fatal(err)
	}
	// Sparse: only the size matters, the bin-packer fails before any read.
	if err := big.Truncate(gcfst.RomSize + 1); err != nil {
		t.Fatal(err)
	}
	big.Close()

	err = Apply(g.f, []Op{Insert("big.bin", bigPath)})
	if !errors.Is(err, gcfst.ErrISOTooLarge) {
		t.Fatalf("Apply with oversized insert = %v, want ErrISOTooLarge", err)
	}
	if !bytes.Equal(readWholeISO(t, g.f), before) {
		t.Error("ISO was modified by a failed insert")
	}
}

func TestApplyRejectsTOCGrowthPastFirstPayload(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)
	before := readWholeISO(t, g.f)

	input := writeInput(t, []byte("x"))
	longName := strings.Repeat("n", 30000)
	err := Apply(g.f, []Op{Insert(longName, input)})
	if !errors.Is(err, gcfst.ErrTOCTooLarge) {
		t.Fatalf("Apply with TOC-busting name = %v, want ErrTOCTooLarge", err)
	}
	if !bytes.Equal(readWholeISO(t, g.f), before) {
		t.Error("ISO was modified by a failed insert")
	}
}

func TestApplyRejectsDeletingMissingPath(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)
	if err := Apply(g.f, []Op{Delete("does/not/exist")}); err == nil {
		t.Fatal("Apply deleting a nonexistent path: got nil error")
	}
}

func TestApplyReplacesBootBlob(t *testing.T) {
	t.Parallel()
	g := buildGoldenEditorISO(t)

	newAppLoader := make([]byte, len(g.appLoader))
	copy(newAppLoader, g.appLoader)
	newAppLoader[len(newAppLoader)-1] ^= 0xff
	input := writeInput(t, newAppLoader)

	if err := Apply(g.f, []Op{Insert("AppLoader.ldr", input)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got := make([]byte, len(newAppLoader))
	const appStart = int64(0x2440) // gcfst.IsoHdrSize
	if _, err := g.f.ReadAt(got, appStart); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, newAppLoader) {
		t.Errorf("AppLoader.ldr was not replaced in place")
	}
}
