package util

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapError(t *testing.T) {
	if WrapError("open device", nil) != nil {
		t.Fatal("WrapError(nil) should be nil")
	}

	base := errors.New("boom")
	err := WrapError("open device", base)
	if !errors.Is(err, base) {
		t.Errorf("wrapped error does not unwrap to base")
	}
	if err.Error() != "failed to open device: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestExtractLastError(t *testing.T) {
	stderr := "arecord: main:830: audio open error\n\nDevice or resource busy\n  \n"
	if got := ExtractLastError(stderr); got != "Device or resource busy" {
		t.Errorf("ExtractLastError = %q", got)
	}

	long := strings.Repeat("x", 300)
	if got := ExtractLastError(long); len(got) != maxErrorLineLength+3 {
		t.Errorf("long line not truncated, len=%d", len(got))
	}
}
