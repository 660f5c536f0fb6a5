// Package analytics builds the instructor dashboard report for one case from
// already-fetched rows. Everything here is pure: no I/O, no shared state, and
// inputs are never mutated, so concurrent Build calls are safe.
package analytics

import (
	"math"
	"strings"
)

// Normalize returns the comparison key for a diagnosis name: lowercased with
// surrounding whitespace removed. Nothing else is folded.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// percent returns round(100*num/den), or nil when den is zero.
func percent(num, den int) *int {
	if den <= 0 {
		return nil
	}
	p := int(math.Round(float64(num) * 100 / float64(den)))
	return &p
}
