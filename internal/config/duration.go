package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseHourField parses "HH:MM" and returns the hour. Minutes are accepted
// but ignored; the quiet window is hour-granular.
func ParseHourField(path, raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	hh, _, ok := strings.Cut(s, ":")
	if !ok {
		hh = s
	}
	var h int
	if _, err := fmt.Sscanf(hh, "%d", &h); err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%s: invalid hour in %q", path, raw)
	}
	return h, nil
}
