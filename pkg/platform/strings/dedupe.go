// Package strings provides string slice utilities.
package strings

import (
	"slices"
	"strings"
)

// DedupeNormalized applies normalize to every value, drops empty results and
// repeats, and returns the survivors sorted. Sorting keeps stored lists
// stable regardless of the order callers supplied them in.
//
// Example:
//
//	DedupeNormalized([]string{" B@x.com", "a@x.com", "b@X.com", ""}, email.Normalize)
//	// Returns: []string{"a@x.com", "b@x.com"}
func DedupeNormalized(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return []string{}
	}
	if normalize == nil {
		normalize = strings.TrimSpace
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	slices.Sort(result)
	return result
}

// Without returns values minus every element equal to drop.
func Without(values []string, drop string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
