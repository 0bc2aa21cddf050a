// Package bytesutil provides the big-endian byte primitives the FST format
// is built from: fixed-width field access at a byte offset, alignment, and
// NUL-terminated name decoding.
package bytesutil

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Align rounds v up to the next multiple of 1<<bits.
func Align(v int64, bits uint) int64 {
	mask := int64(1)<<bits - 1
	return (v + mask) &^ mask
}

// BE32At reads a big-endian uint32 at offset off in b.
func BE32At(b []byte, off int64) uint32 {
	_ = b[off+3]
	return binary.BigEndian.Uint32(b[off:])
}

// PutBE32At writes v as a big-endian uint32 at offset off in b.
func PutBE32At(b []byte, off int64, v uint32) {
	_ = b[off+3]
	binary.BigEndian.PutUint32(b[off:], v)
}

// CString reads a NUL-terminated string from b starting at off. It returns
// an error if no NUL byte occurs before the end of b.
func CString(b []byte, off int64) (string, error) {
	if off < 0 || off > int64(len(b)) {
		return "", xerrors.Errorf("name offset %d out of range (pool size %d)", off, len(b))
	}
	rest := b[off:]
	nul := indexByte(rest, 0)
	if nul < 0 {
		return "", xerrors.Errorf("name at offset %d has no NUL terminator", off)
	}
	return string(rest[:nul]), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// EqualFoldASCII reports whether a and b are equal under ASCII
// case-insensitive comparison, the name equality the FST format's sibling
// order is built on (LessFoldASCII breaks ties between such names by plain
// byte comparison).
func EqualFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

// LessFoldASCII reports whether a sorts before b under the FST's
// case-insensitive-then-codepoint sibling order.
func LessFoldASCII(a, b string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		la, lb := lowerASCII(a[i]), lowerASCII(b[i])
		if la != lb {
			return la < lb
		}
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
