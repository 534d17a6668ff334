package version

import (
	"fmt"
	"strconv"
	"strings"
)

const Version = "0.1.0"

// EnsureCompatible reports whether a mirror written by version target can be
// operated by this build: majors must match and the build must not be older
// than the writer. An empty target passes, for configs predating the field.
func EnsureCompatible(target string) error {
	value := strings.TrimSpace(target)
	if value == "" {
		return nil
	}

	current, err := parse(Version)
	if err != nil {
		return fmt.Errorf("parse current version %q: %w", Version, err)
	}
	required, err := parse(value)
	if err != nil {
		return err
	}

	if required[0] != current[0] {
		return fmt.Errorf("unsupported major version %d (current major is %d)", required[0], current[0])
	}
	for i := range current {
		if current[i] == required[i] {
			continue
		}
		if current[i] < required[i] {
			return fmt.Errorf("requires kanna >= %s (current %s)", value, Version)
		}
		break
	}

	return nil
}

// parse reads "MAJOR.MINOR.PATCH", with an optional "v" prefix, into its
// three numeric parts.
func parse(raw string) ([3]int, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(raw), "v"), ".")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("invalid version %q (expected MAJOR.MINOR.PATCH)", raw)
	}

	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return [3]int{}, fmt.Errorf("invalid version %q (expected MAJOR.MINOR.PATCH)", raw)
		}
		v[i] = n
	}
	return v, nil
}
