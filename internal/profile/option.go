package profile

import (
	"strings"

	"github.com/autoresumefiller/autofill/internal/model"
)

// MatchOption maps a looked-up value onto one of an enumerated field's
// options: exact match after normalization first, then containment either
// way. It reports false when no option fits.
func MatchOption(value string, options []string) (string, bool) {
	want := model.NormalizeLabel(value)
	if want == "" {
		return "", false
	}

	for _, o := range options {
		if model.NormalizeLabel(o) == want {
			return o, true
		}
	}

	best, bestLen := "", 0
	for _, o := range options {
		norm := model.NormalizeLabel(o)
		if norm == "" {
			continue
		}
		if strings.Contains(norm, want) || strings.Contains(want, norm) {
			// Prefer the most specific option.
			if len(norm) > bestLen {
				best, bestLen = o, len(norm)
			}
		}
	}
	return best, best != ""
}
