// Package editor implements the in-place batch editor: it applies a batch
// of Insert/Delete operations to a live ISO file, preserving untouched
// payloads, and rewrites only the FST and the touched extents.
//
// Internally it represents the filesystem as a tree rather than
// manipulating the flat fst.Events stream directly: directory lookup,
// case-insensitive sorted insertion, and empty-directory collapse are all
// naturally tree operations, and the tree is flattened back into an
// fst.Events stream (internal/fst) only at the end, right before
// fst.Serialize. This keeps the hard part of this component (mkdir
// synthesis and sibling-sorted insertion) independent of the back-patch
// index arithmetic that fst.Serialize already owns.
package editor

import (
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
	"github.com/discgc/gcfst/internal/bytesutil"
	"github.com/discgc/gcfst/internal/fst"
)

// node is one entry in the in-memory directory tree. The root node has an
// empty name and is always a directory.
type node struct {
	name  string
	isDir bool

	// file fields
	dataOffset, size int64

	// directory field, kept sorted by bytesutil.LessFoldASCII
	children []*node
}

func newRoot() *node { return &node{isDir: true} }

func buildTree(events fst.Events) (*node, error) {
	root := newRoot()
	stack := []*node{root}
	for _, ev := range events {
		cur := stack[len(stack)-1]
		switch ev.Kind {
		case fst.PushDir:
			child := &node{name: ev.Name, isDir: true}
			cur.children = append(cur.children, child)
			stack = append(stack, child)
		case fst.PopDir:
			if len(stack) == 1 {
				return nil, xerrors.Errorf("unbalanced PopDir in event stream: %w", gcfst.ErrInvalidISO)
			}
			stack = stack[:len(stack)-1]
		case fst.File:
			cur.children = append(cur.children, &node{
				name:       ev.Name,
				dataOffset: ev.DataOffset,
				size:       ev.Size,
			})
		}
	}
	if len(stack) != 1 {
		return nil, xerrors.Errorf("event stream has unclosed directories: %w", gcfst.ErrInvalidISO)
	}
	return root, nil
}

// flatten walks the tree (excluding the synthetic root node itself) in
// depth-first order and appends the corresponding fst.Events.
func flatten(n *node) fst.Events {
	var events fst.Events
	for _, c := range n.children {
		if c.isDir {
			events = append(events, fst.PushDirEvent(c.name))
			events = append(events, flatten(c)...)
			events = append(events, fst.PopDirEvent())
		} else {
			events = append(events, fst.FileEvent(c.name, c.dataOffset, c.size))
		}
	}
	return events
}

// splitPath splits a clean, slash-separated iso path into components,
// rejecting empty components and the reserved systemdata name.
func splitPath(isoPath string) ([]string, error) {
	trimmed := strings.Trim(isoPath, "/")
	if trimmed == "" {
		return nil, xerrors.Errorf("empty ISO path: %w", gcfst.ErrInvalidISOPath)
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return nil, xerrors.Errorf("%q has an empty path component: %w", isoPath, gcfst.ErrInvalidISOPath)
		}
		if p == gcfst.SystemDataDirName {
			return nil, xerrors.Errorf("%q uses reserved name %q: %w", isoPath, gcfst.SystemDataDirName, gcfst.ErrInvalidISOPath)
		}
		if err := validateEncodable(p); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// samePathParts reports whether two split paths name the same entry under
// the FST's case-insensitive name equality.
func samePathParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytesutil.EqualFoldASCII(a[i], b[i]) {
			return false
		}
	}
	return true
}

func findChild(n *node, name string) *node {
	for _, c := range n.children {
		if bytesutil.EqualFoldASCII(c.name, name) {
			return c
		}
	}
	return nil
}

// insertSorted inserts child into n's children at its case-insensitive
// sorted position.
func insertSorted(n *node, child *node) {
	i := sort.Search(len(n.children), func(i int) bool {
		return bytesutil.LessFoldASCII(child.name, n.children[i].name)
	})
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

// deleteFile removes the file at isoPath from the tree, if present, and
// returns it (for its extent to be excluded from the surviving-used list).
func deleteFile(root *node, isoPath string) (*node, error) {
	parts, err := splitPath(isoPath)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next := findChild(cur, p)
		if next == nil || !next.isDir {
			return nil, nil // nothing to delete
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	for i, c := range cur.children {
		if !c.isDir && bytesutil.EqualFoldASCII(c.name, leaf) {
			cur.children = append(cur.children[:i], cur.children[i+1:]...)
			return c, nil
		}
	}
	return nil, nil
}

// collapseEmptyDirs removes directory children that end up with no
// children of their own, recursively, so that a deletion cascades upward:
// deleting the only file in a directory tree removes every directory that
// becomes empty as a result.
func collapseEmptyDirs(n *node) {
	kept := n.children[:0]
	for _, c := range n.children {
		if c.isDir {
			collapseEmptyDirs(c)
			if len(c.children) == 0 {
				continue
			}
		}
		kept = append(kept, c)
	}
	n.children = kept
}

// collectFileExtents walks the tree collecting every surviving file's
// [dataOffset, dataOffset+size) extent.
func collectFileExtents(n *node, out *[]extent) {
	for _, c := range n.children {
		if c.isDir {
			collectFileExtents(c, out)
		} else {
			*out = append(*out, extent{start: c.dataOffset, end: c.dataOffset + c.size})
		}
	}
}

// mkdirAndInsert walks isoPath's ancestor components from root, descending
// into existing directories or synthesizing new ones at the correct sorted
// position, then inserts a file node for the final component and returns
// it.
func mkdirAndInsert(root *node, isoPath string, size int64) (*node, error) {
	parts, err := splitPath(isoPath)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next := findChild(cur, p)
		if next == nil {
			next = &node{name: p, isDir: true}
			insertSorted(cur, next)
		} else if !next.isDir {
			return nil, xerrors.Errorf("%q: %q is a file, not a directory: %w", isoPath, p, gcfst.ErrInvalidISOPath)
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	if existing := findChild(cur, leaf); existing != nil && existing.isDir {
		return nil, xerrors.Errorf("%q is a directory: %w", isoPath, gcfst.ErrInvalidISOPath)
	}
	file := &node{name: leaf, size: size}
	insertSorted(cur, file)
	return file, nil
}
