package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// iso8601Duration matches the subset of ISO-8601 durations this core needs:
// PnYnMnDTnHnMnS, with years/months approximated to 365/30 days since the
// orchestration core only ever uses durations on the order of hours.
var iso8601Duration = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISO8601Duration parses durations like "PT30M", "PT4H", "P1DT2H".
// The standard library has no ISO-8601 duration grammar (time.ParseDuration
// only understands Go's own "30m"/"4h" suffix form), so this small parser
// carries the one piece of the ambient stack no pack dependency supplies.
func ParseISO8601Duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty ISO-8601 duration")
	}
	m := iso8601Duration.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration: %q", s)
	}

	var total time.Duration
	add := func(v string, unit time.Duration) error {
		if v == "" {
			return nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		total += time.Duration(n * float64(unit))
		return nil
	}

	if err := add(m[1], 365*24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[2], 30*24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[3], 24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[4], time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[5], time.Minute); err != nil {
		return 0, err
	}
	if err := add(m[6], time.Second); err != nil {
		return 0, err
	}

	if total == 0 && s != "PT0S" && s != "P0D" {
		return 0, fmt.Errorf("invalid or zero-length ISO-8601 duration: %q", s)
	}

	return total, nil
}

// FormatISO8601Duration renders a duration back to ISO-8601 (hours/minutes/
// seconds form), the inverse of ParseISO8601Duration for such values.
func FormatISO8601Duration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	h := int64(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	mm := int64(d / time.Minute)
	d -= time.Duration(mm) * time.Minute
	secs := d.Seconds()

	out := "PT"
	if h > 0 {
		out += fmt.Sprintf("%dH", h)
	}
	if mm > 0 {
		out += fmt.Sprintf("%dM", mm)
	}
	if secs > 0 {
		out += fmt.Sprintf("%gS", secs)
	}
	if out == "PT" {
		out = "PT0S"
	}
	return out
}
