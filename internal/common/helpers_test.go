package common

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFormatPoints(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 pts"},
		{1, "1 pt"},
		{-1, "-1 pt"},
		{999, "999 pts"},
		{1_500, "1 500 pts"},
		{2_000_050, "2 000 050 pts"},
		{-12_345, "-12 345 pts"},
	}
	for _, tc := range tests {
		if got := FormatPoints(tc.in); got != tc.want {
			t.Fatalf("FormatPoints(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatSignedPoints(t *testing.T) {
	if got := FormatSignedPoints(250); got != "+250 pts" {
		t.Fatalf("got %q", got)
	}
	if got := FormatSignedPoints(-1_000); got != "-1 000 pts" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	if loc := LoadLocation("Nowhere/Atlantis"); loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 22, 5, 0, 0, time.UTC)
	if got := FormatDateTime(ts, nil); got != "09.03.2024 22:05" {
		t.Fatalf("got %q", got)
	}
	plus3 := time.FixedZone("+3", 3*3600)
	if got := FormatDateTime(ts, plus3); got != "10.03.2024 01:05" {
		t.Fatalf("got %q", got)
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("debit: %w", ErrInsufficientBalance)
	if !IsDomainError(wrapped) {
		t.Fatalf("wrapped domain error not recognised")
	}
	if IsDomainError(errors.New("connection reset")) {
		t.Fatalf("infrastructure error treated as domain error")
	}
	if IsDomainError(nil) {
		t.Fatalf("nil is not a domain error")
	}
}
