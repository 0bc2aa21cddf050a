package editor

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"

	"github.com/discgc/gcfst"
)

// validateEncodable rejects names that cannot round-trip through the
// host path API as UTF-8; the editor rejects rather than guessing an
// encoding. When rejecting, it adds a non-binding diagnostic (decoding the
// raw bytes as Shift_JIS), since the common real-world case for this error is
// a Japanese title authored on a non-Japanese-locale host filesystem.
func validateEncodable(name string) error {
	if utf8.ValidString(name) {
		return nil
	}
	if decoded, ok := tryShiftJIS(name); ok {
		return xerrors.Errorf("name %q is not valid UTF-8 (looks like Shift_JIS for %q): %w", name, decoded, gcfst.ErrInvalidFilename)
	}
	return xerrors.Errorf("name %q is not valid UTF-8: %w", name, gcfst.ErrInvalidFilename)
}

func tryShiftJIS(raw string) (string, bool) {
	decoded, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), raw)
	// The decoder substitutes U+FFFD for undecodable bytes rather than
	// returning an error, so its presence means raw was not clean Shift_JIS.
	if err != nil || decoded == "" || strings.ContainsRune(decoded, utf8.RuneError) {
		return "", false
	}
	return decoded, true
}
