package market

import (
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	cases := map[string]Timeframe{
		"1min":  M1,
		"1m":    M1,
		"15MIN": M15,
		"4h":    H4,
		"1d":    D1,
		"1w":    W1,
		"1M":    MN1,
	}
	for in, want := range cases {
		got, err := ParseTimeframe(in)
		if err != nil {
			t.Fatalf("ParseTimeframe(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTimeframe(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseTimeframe("7min"); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
	if H4.Duration() != 4*time.Hour {
		t.Fatalf("unexpected H4 duration %s", H4.Duration())
	}
}
