package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration parses a duration-valued config field. An empty field reads as
// zero, meaning unset; negative values are rejected, so callers can treat
// zero alone as "use the default".
func Duration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// DurationOrDefault is Duration with def substituted for unset fields.
func DurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := Duration(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
