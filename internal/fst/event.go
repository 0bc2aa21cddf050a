// Package fst parses and serializes the GameCube File String Table: a
// packed, big-endian directory-tree index followed by a NUL-terminated
// string pool. The tree is represented as a flat, ordered stream of events
// rather than a pointer-linked tree: both reading and writing are a single
// depth-first walk, with the writer back-patching each directory's
// "subtree ends here" index once the subtree has been emitted.
package fst

// EventKind distinguishes the three event shapes in a traversal stream.
type EventKind int

const (
	// PushDir opens a directory; a matching PopDir closes it.
	PushDir EventKind = iota
	// PopDir closes the most recently opened, not-yet-closed directory.
	PopDir
	// File describes one file entry within the currently open directory
	// (or at the root, if no directory is open).
	File
)

// Event is one step of a depth-first traversal of an FST's directory tree.
type Event struct {
	Kind EventKind

	// Name is set for PushDir and File events.
	Name string

	// DataOffset and Size are set for File events: the half-open byte
	// range [DataOffset, DataOffset+Size) within the ISO holding the
	// file's contents.
	DataOffset int64
	Size       int64
}

// Events is an ordered traversal stream. Helper constructors keep call
// sites in reader.go, builder, and editor readable.
type Events []Event

func PushDirEvent(name string) Event { return Event{Kind: PushDir, Name: name} }
func PopDirEvent() Event             { return Event{Kind: PopDir} }
func FileEvent(name string, dataOffset, size int64) Event {
	return Event{Kind: File, Name: name, DataOffset: dataOffset, Size: size}
}
