package utils

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CleanHeader trims whitespace and removes all quotes from a CSV header name
func CleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff") // BOM on the first column
	h = strings.TrimSpace(h)
	return strings.ReplaceAll(h, `"`, "")
}

// ParseFloat parses a numeric cell. NaN and infinities are rejected.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid number %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("non-finite number %q", s)
	}
	return f, nil
}

// ParseInt parses an integer cell, accepting integral floats like "2019.0"
func ParseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.Errorf("not an integer %q", s)
	}
	return int(f), nil
}
