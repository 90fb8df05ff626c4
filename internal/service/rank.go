package service

import (
	"cmp"
	"slices"

	"github.com/sakif/highest-aircraft/internal/model"
)

// Rank orders flights best-first for category and keeps at most n.
//
// Ordering: higher metric first; a flight with an unknown metric sorts after
// every flight with a known one; equal metrics fall back to ident so the
// result never depends on provider order. The input slice is not modified.
func Rank(flights []model.Flight, category model.Category, n int) []model.Flight {
	ranked := slices.Clone(flights)
	slices.SortFunc(ranked, func(a, b model.Flight) int {
		if c := compareMetric(a.Metric(category), b.Metric(category)); c != 0 {
			return c
		}
		return cmp.Compare(a.Ident, b.Ident)
	})

	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// compareMetric sorts descending with nil last.
func compareMetric(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*b, *a)
	}
}
