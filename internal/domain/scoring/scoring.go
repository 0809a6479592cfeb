// Package scoring defines the points policy applied on habit completion.
//
// The policy is a pure function of the streak length reported in the event so
// the points handler stays independent from the streak handler and scoring
// rules can change without touching pipeline plumbing.
package scoring

import (
	"math"
	"sort"
)

// Default scoring configuration constants.
const (
	defaultBasePoints = 10
)

// defaultMultipliers rewards longer streaks with higher tiers.
var defaultMultipliers = map[int]float64{
	7:   2.0,
	30:  5.0,
	100: 10.0,
}

// Policy computes the points awarded for a single habit completion.
type Policy interface {
	// Points returns the award for a completion at the given streak length.
	Points(streak int) int
}

// Option applies a configuration option to the TieredPolicy.
type Option func(*TieredPolicy)

// WithBasePoints sets the base award per completion.
func WithBasePoints(base int) Option {
	return func(p *TieredPolicy) {
		if base > 0 {
			p.base = base
		}
	}
}

// WithMultipliers sets the streak-threshold multiplier table. Thresholds with
// non-positive multipliers are dropped.
func WithMultipliers(multipliers map[int]float64) Option {
	return func(p *TieredPolicy) {
		if len(multipliers) == 0 {
			return
		}
		p.multipliers = make(map[int]float64, len(multipliers))
		for threshold, mult := range multipliers {
			if threshold > 0 && mult > 0 {
				p.multipliers[threshold] = mult
			}
		}
	}
}

// TieredPolicy implements Policy with a base award scaled by the highest
// multiplier tier the streak has reached.
type TieredPolicy struct {
	base        int
	multipliers map[int]float64
}

// NewTieredPolicy creates a policy with the default table (base 10; x2 at a
// 7-day streak, x5 at 30, x10 at 100) unless overridden by options.
func NewTieredPolicy(opts ...Option) *TieredPolicy {
	p := &TieredPolicy{
		base:        defaultBasePoints,
		multipliers: defaultMultipliers,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Points implements Policy. The highest tier at or below the streak wins;
// below the first tier the base award applies unscaled.
func (p *TieredPolicy) Points(streak int) int {
	thresholds := make([]int, 0, len(p.multipliers))
	for threshold := range p.multipliers {
		thresholds = append(thresholds, threshold)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(thresholds)))

	for _, threshold := range thresholds {
		if streak >= threshold {
			return int(math.Round(float64(p.base) * p.multipliers[threshold]))
		}
	}
	return p.base
}
