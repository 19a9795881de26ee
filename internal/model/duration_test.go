package model

import (
	"testing"
	"time"
)

func TestParseISO8601Duration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT30M", 30 * time.Minute},
		{"PT1M", time.Minute},
		{"PT4H", 4 * time.Hour},
		{"P1D", 24 * time.Hour},
		{"P1DT2H", 24*time.Hour + 2*time.Hour},
		{"PT1.5S", 1500 * time.Millisecond},
	}

	for _, c := range cases {
		got, err := ParseISO8601Duration(c.in)
		if err != nil {
			t.Fatalf("ParseISO8601Duration(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseISO8601Duration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseISO8601DurationInvalid(t *testing.T) {
	for _, in := range []string{"", "30M", "garbage", "P"} {
		if _, err := ParseISO8601Duration(in); err == nil {
			t.Errorf("ParseISO8601Duration(%q) expected error", in)
		}
	}
}

func TestFormatISO8601DurationRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{30 * time.Minute, time.Hour, 90 * time.Second} {
		s := FormatISO8601Duration(d)
		got, err := ParseISO8601Duration(s)
		if err != nil {
			t.Fatalf("round-trip parse of %q failed: %v", s, err)
		}
		if got != d {
			t.Errorf("round trip %v -> %q -> %v, want %v", d, s, got, d)
		}
	}
}

func TestClassificationRankOrdering(t *testing.T) {
	if !ClassificationCritical.Less(ClassificationSecurity) {
		t.Error("Critical should rank before Security")
	}
	if !ClassificationSecurity.Less(ClassificationOther) {
		t.Error("Security should rank before Other")
	}
	if !ClassificationOther.Less(ClassificationUnknown) {
		t.Error("Other should rank before Unknown")
	}
}
