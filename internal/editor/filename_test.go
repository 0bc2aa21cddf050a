package editor

import (
	"errors"
	"strings"
	"testing"

	"github.com/discgc/gcfst"
)

func TestValidateEncodable(t *testing.T) {
	t.Parallel()

	if err := validateEncodable("menu.hps"); err != nil {
		t.Fatalf("validateEncodable(ASCII name): %v", err)
	}
	if err := validateEncodable("メニュー.hps"); err != nil {
		t.Fatalf("validateEncodable(UTF-8 name): %v", err)
	}

	// "テスト" encoded as Shift_JIS: invalid UTF-8, but the rejection should
	// carry the decoded text as a hint.
	sjis := "\x83\x65\x83\x58\x83\x67"
	err := validateEncodable(sjis)
	if !errors.Is(err, gcfst.ErrInvalidFilename) {
		t.Fatalf("validateEncodable(Shift_JIS name) = %v, want ErrInvalidFilename", err)
	}
	if !strings.Contains(err.Error(), "テスト") {
		t.Errorf("error %q does not contain the decoded Shift_JIS hint", err)
	}

	// Valid neither as UTF-8 nor as Shift_JIS: rejected without a hint.
	err = validateEncodable("\xff\xfe")
	if !errors.Is(err, gcfst.ErrInvalidFilename) {
		t.Fatalf("validateEncodable(garbage name) = %v, want ErrInvalidFilename", err)
	}
	if strings.Contains(err.Error(), "Shift_JIS") {
		t.Errorf("error %q carries a Shift_JIS hint for undecodable bytes", err)
	}
}
