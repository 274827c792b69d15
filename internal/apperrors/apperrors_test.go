package apperrors

import (
	"errors"
	"testing"
)

func TestWrapPreservesSentinelMatching(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrUpstream, "fetch dataset 101_1015", base)

	if !errors.Is(err, ErrUpstream) {
		t.Fatal("expected wrapped error to match ErrUpstream")
	}
	if errors.Is(err, ErrStorage) {
		t.Fatal("did not expect wrapped error to match ErrStorage")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected Unwrap to expose the original error")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(ErrValidation, "msg", nil) != nil {
		t.Fatal("expected Wrap(nil) to return nil")
	}
}
