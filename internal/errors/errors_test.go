package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDiagnosticError(t *testing.T) {
	d := New(J0002, "Test:Run", 12, "no free %s register", "gp").AtLine(4)
	want := "J0002 Test:Run@12 (line 4): no free gp register"
	if got := d.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	whole := New(V0004, "Test", -1, "duplicate class id 3")
	if got := whole.Error(); got != "V0004 Test: duplicate class id 3" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapAndCodeOf(t *testing.T) {
	base := errors.New("boom")
	if Wrap(R0003, "M", 0, nil) != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	err := fmt.Errorf("outer: %w", Wrap(R0003, "M", 1, base))
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if code := CodeOf(err); code != R0003 {
		t.Errorf("CodeOf = %q", code)
	}
	if CodeOf(base) != "" {
		t.Error("plain error has no code")
	}
}

func TestErrorInfo(t *testing.T) {
	info, ok := GetErrorInfo(J0001)
	if !ok || info.Level != LevelWarning {
		t.Errorf("J0001 info = %+v, %v", info, ok)
	}
	if !IsRuntimeError(R0001) || IsRuntimeError(J0002) {
		t.Error("IsRuntimeError misclassifies")
	}
}

func TestFormatter(t *testing.T) {
	f := &Formatter{Colors: false}
	out := f.Format(New(J0002, "Test:Run", 3, "exhausted"))
	if !strings.HasPrefix(out, "error[J0002]: exhausted") || !strings.Contains(out, "--> Test:Run@3") {
		t.Errorf("unexpected format:\n%s", out)
	}
	if got := f.FormatError(errors.New("plain")); got != "error: plain\n" {
		t.Errorf("FormatError = %q", got)
	}
}

func TestHighlightListing(t *testing.T) {
	old := ColorsEnabled()
	defer SetColorsEnabled(old)

	SetColorsEnabled(true)
	line := "   3  7    JMP L-2 if 1"
	out := HighlightListing(line)
	if Strip(out) != "   3  7    JMP L-2 if 1" {
		t.Errorf("Strip(highlight) = %q", Strip(out))
	}
	if !strings.Contains(out, Colorize("JMP", ColorYellow)) {
		t.Errorf("mnemonic not highlighted: %q", out)
	}
	if HighlightListing("== header ==") != "== header ==" {
		t.Error("non-instruction lines must pass through")
	}
}
