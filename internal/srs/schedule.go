// Package srs implements the review scheduler: a deliberately simplified
// spaced-repetition heuristic, not a faithful rendition of any published
// algorithm. Both entry points are pure functions of their arguments.
package srs

import (
	"math"
	"time"
)

// Defaults substituted for a card that has never been scheduled.
const (
	DefaultStability  = 1.0
	DefaultDifficulty = 5.0
)

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// State is the scheduling state of a card going into a review. Nil fields
// mean the card has never been scheduled; defaults are substituted.
type State struct {
	Stability      *float64
	Difficulty     *float64
	LastReviewedAt *time.Time
}

// Result is the scheduler's output for one review.
type Result struct {
	Stability      float64
	Difficulty     float64
	Retrievability float64
	NextDueAt      time.Time
}

// Schedule computes the next scheduling state for a card given the rating of
// the review that just happened.
//
// The interval for Good and Easy is computed from the stability going into
// the review, which makes it numerically equal to the new stability for
// those two ratings. That is intentional behavior of this simplified
// scheduler and callers must not "correct" it.
//
// Intervals are rounded up to whole days, so even the fractional Again
// interval yields at least one day of separation. prior.LastReviewedAt is
// part of the contract for future extension but does not affect the current
// computation.
func Schedule(rating Rating, prior State, now time.Time) (Result, error) {
	if !rating.Valid() {
		return Result{}, ErrInvalidRating
	}

	stability := DefaultStability
	if prior.Stability != nil {
		stability = *prior.Stability
	}
	difficulty := DefaultDifficulty
	if prior.Difficulty != nil {
		difficulty = *prior.Difficulty
	}

	var res Result
	var intervalDays float64

	switch rating {
	case Again:
		res.Stability = math.Max(minStability, stability*0.5)
		res.Difficulty = math.Min(maxDifficulty, difficulty+1)
		res.Retrievability = 0.3
		intervalDays = 0.1
	case Hard:
		res.Stability = stability * 0.85
		res.Difficulty = math.Min(maxDifficulty, difficulty+0.5)
		res.Retrievability = 0.7
		intervalDays = stability * 1.2
	case Good:
		res.Stability = stability * 2.5
		res.Difficulty = math.Max(minDifficulty, difficulty-0.3)
		res.Retrievability = 0.9
		intervalDays = stability * 2.5
	case Easy:
		res.Stability = stability * 4
		res.Difficulty = math.Max(minDifficulty, difficulty-0.5)
		res.Retrievability = 0.9
		intervalDays = stability * 4
	}

	res.Stability = clamp(res.Stability, minStability, math.Inf(1))
	res.Difficulty = clamp(res.Difficulty, minDifficulty, maxDifficulty)
	res.NextDueAt = now.Add(time.Duration(math.Ceil(intervalDays)) * 24 * time.Hour)

	return res, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
