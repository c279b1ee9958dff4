package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapRoundTrip(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(base, KindLog, CodeWriteFailed)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if KindOf(err) != KindLog {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindLog)
	}
	if CodeOf(err) != CodeWriteFailed {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeWriteFailed)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if err.Error() != "disk full" {
		t.Errorf("Error() = %q, want cause message", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindLog, CodeWriteFailed) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestIsMatchesKindAndCode(t *testing.T) {
	sentinel := New(KindCatalog, CodePoolSizeMismatch, "bad pool")
	other := Wrap(errors.New("different text"), KindCatalog, CodePoolSizeMismatch)
	wrapped := fmt.Errorf("startup: %w", other)

	if !errors.Is(wrapped, sentinel) {
		t.Error("errors.Is should match on kind and code through fmt wrapping")
	}
	if errors.Is(wrapped, New(KindCatalog, CodeWriteFailed, "x")) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"capture", New(KindCapture, CodeDeviceUnavailable, "no camera"), false},
		{"log", New(KindLog, CodeWriteFailed, "io"), true},
		{"catalog", New(KindCatalog, CodePoolSizeMismatch, "4 files"), true},
		{"plain", errors.New("unclassified"), true},
	}
	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
