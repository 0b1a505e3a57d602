package util

import (
	"errors"
	"testing"
)

func TestLogNotifyResult(t *testing.T) {
	errSend := errors.New("send failed")

	if err := LogNotifyResult(func() error { return nil }, "webhook", "event", "test"); err != nil {
		t.Errorf("success returned %v", err)
	}
	if err := LogNotifyResult(func() error { return errSend }, "email"); !errors.Is(err, errSend) {
		t.Errorf("failure returned %v, want %v", err, errSend)
	}
}
