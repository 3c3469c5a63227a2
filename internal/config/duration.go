package config

import (
	"fmt"
	"strings"
	"time"
)

const DefaultShutdownTimeout = 30 * time.Second

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

// ParseThreshold parses a misfire threshold. Empty means the scheduler
// default (0); "off" disables the check (negative).
func ParseThreshold(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, "off") {
		return -1, nil
	}
	return ParseDurationField(path, s)
}
