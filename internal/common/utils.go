package common

import (
	"strconv"
	"strings"
)

// FormatPositional replaces each "%s" in template, left to right, with the
// next argument. Surplus placeholders are left as is.
func FormatPositional(template string, args ...string) string {
	out := template
	for _, a := range args {
		out = strings.Replace(out, "%s", a, 1)
	}
	return out
}

// FormatCoord formats a coordinate with four decimals.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
