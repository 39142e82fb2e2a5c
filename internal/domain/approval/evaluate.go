package approval

import (
	"bytes"
	"sort"
)

// Evaluate returns the first eligible rule, by descending priority, whose
// conditions all match the shape; nil when none does. Equal priorities fall
// back to creation order and then id so the choice is deterministic.
func Evaluate(rules []*Rule, shape Shape) *Rule {
	candidates := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsEligible() {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	for _, r := range candidates {
		if r.Matches(shape) {
			return r
		}
	}
	return nil
}

// AnyNeedsValue reports whether any eligible rule tests total value
func AnyNeedsValue(rules []*Rule) bool {
	for _, r := range rules {
		if r.IsEligible() && r.NeedsValue() {
			return true
		}
	}
	return false
}
