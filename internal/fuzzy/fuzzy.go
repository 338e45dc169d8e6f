// Package fuzzy compares free-text answers so that minor misspellings are still accepted.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/victornm/chotrivia/internal/errors"
)

// DefaultThreshold is the minimum similarity an answer needs to be accepted.
const DefaultThreshold = 0.8

// ErrDegenerateInput is returned when both compared strings are empty.
var ErrDegenerateInput = errors.New(errors.CodeInvalidArgument,
	errors.WithMessagef("fuzzy: both strings are empty"))

// Similarity returns (len(a)+len(b)-distance)/(len(a)+len(b)), where distance is the
// Levenshtein distance of a and b. Lengths are counted in runes. With ignoreCase both
// strings are lower-cased and trimmed before anything is measured.
func Similarity(a, b string, ignoreCase bool) (float64, error) {
	if ignoreCase {
		a = normalize(a)
		b = normalize(b)
	}

	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 0, ErrDegenerateInput
	}

	d := levenshtein.ComputeDistance(a, b)
	return float64(total-d) / float64(total), nil
}

// IsMatch reports whether answer is similar enough to any of the acceptable answers.
// Comparisons of two empty strings never match.
func IsMatch(answer string, acceptable []string, threshold float64) bool {
	for _, candidate := range acceptable {
		r, err := Similarity(answer, candidate, true)
		if err != nil {
			continue
		}

		if r >= threshold {
			return true
		}
	}

	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
