package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	cfg := ConfigurationErrorf("budget of %d blocks too small", 2)
	if !IsConfiguration(cfg) {
		t.Error("expected configuration error")
	}
	if CodeOf(cfg) != ConfigurationLimitExceed {
		t.Errorf("unexpected code %q", CodeOf(cfg))
	}

	tm := TypeMismatchErrorf("cannot compare TEXT with BIGINT")
	if !IsTypeMismatch(tm) {
		t.Error("expected type mismatch error")
	}

	res := ResourceErrorf(io.ErrUnexpectedEOF, "failed to read partition")
	if !IsResource(res) {
		t.Error("expected resource error")
	}
	if !errors.Is(res, io.ErrUnexpectedEOF) {
		t.Error("resource error must wrap its cause")
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := ConfigurationErrorf("too small")
	outer := fmt.Errorf("failed to open join: %w", inner)
	if !IsConfiguration(outer) {
		t.Error("code must be extractable through fmt.Errorf wrapping")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := New(IOError, "disk unhappy").WithDetail("sector 7 unreadable")
	msg := err.Error()
	if msg != "disk unhappy (SQLSTATE 58030) DETAIL: sector 7 unreadable" {
		t.Errorf("unexpected message: %q", msg)
	}

	err = Newf(DatatypeMismatch, "bad %s", "kind").WithHint("cast the value first")
	if err.Hint != "cast the value first" {
		t.Errorf("unexpected hint: %q", err.Hint)
	}
}
