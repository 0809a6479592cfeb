// Package milestone defines streak thresholds that unlock achievements.
package milestone

import (
	"fmt"
	"sort"
)

// defaultThresholds are the streak lengths that unlock achievements.
var defaultThresholds = []int{7, 30, 100}

// descriptions maps thresholds to the human-readable achievement names used
// in achievement records and congratulation mail.
var descriptions = map[int]string{
	7:   "1 Week Streak",
	30:  "1 Month Streak",
	100: "100 Days Streak",
}

// Thresholds is an ascending list of milestone streak lengths.
type Thresholds []int

// Default returns the standard milestone set.
func Default() Thresholds {
	out := make(Thresholds, len(defaultThresholds))
	copy(out, defaultThresholds)
	return out
}

// New builds a threshold set from arbitrary input, dropping non-positive
// values and duplicates and sorting ascending.
func New(values []int) Thresholds {
	seen := make(map[int]struct{}, len(values))
	out := make(Thresholds, 0, len(values))
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Crossed returns the thresholds newly reached when a streak moves from prev
// to next, i.e. those in (prev, next]. A streak that does not grow crosses
// nothing, which is what keeps redelivered events from re-unlocking.
func (t Thresholds) Crossed(prev, next int) []int {
	if next <= prev {
		return nil
	}
	var crossed []int
	for _, threshold := range t {
		if threshold > prev && threshold <= next {
			crossed = append(crossed, threshold)
		}
	}
	return crossed
}

// Type returns the achievement type string for a threshold, e.g. "streak:7".
func Type(threshold int) string {
	return fmt.Sprintf("streak:%d", threshold)
}

// Description returns the display name for a threshold. Thresholds outside
// the standard set get a generic name.
func Description(threshold int) string {
	if d, ok := descriptions[threshold]; ok {
		return d
	}
	return fmt.Sprintf("%d Day Streak", threshold)
}
