package reshape

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates numeric strings after cleanup.
// Matches: 123, -123.45, +0.5, .5, 1e10, 1.5E-3
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseMeasure converts an exported measure value to float64.
// Handles:
//   - Thousands separators: "1,234.5" → 1234.5
//   - Surrounding whitespace
//
// Returns ok=false for blank or non-numeric input.
func ParseMeasure(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
