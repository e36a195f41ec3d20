// Package score computes the normalized virality score shared by every
// discovery source.
package score

import (
	"math"
	"time"
)

// Weighting policy. The ceilings cap how much a single signal can contribute;
// the weights sum to 100.
const (
	EngagementCeiling = 20.0   // percent
	VelocityCeiling   = 5000.0 // views per hour
	RecencyWindow     = 720.0  // hours

	EngagementWeight = 40.0
	VelocityWeight   = 40.0
	RecencyWeight    = 20.0

	ShortBonus = 1.1 // 0 < duration <= 60s
	LongMalus  = 0.9 // duration > 180s
)

// Input is the raw engagement data of a single video.
type Input struct {
	Views           int64
	Likes           int64
	Comments        int64
	Shares          int64
	UploadDate      time.Time
	DurationSeconds float64
}

// Result holds the score and the two intermediate rates that are persisted
// alongside it.
type Result struct {
	Viral          float64 // 0..100
	EngagementRate float64 // percent
	ViewVelocity   float64 // views per hour
}

// Compute scores in against the reference time now.
func Compute(in Input, now time.Time) Result {
	ageHours := math.Max(1, now.Sub(in.UploadDate).Hours())

	views := float64(in.Views)
	interactions := float64(in.Likes + in.Comments + 2*in.Shares)
	engagement := interactions / math.Max(views, 1) * 100
	velocity := views / ageHours
	recency := math.Max(0, 1-ageHours/RecencyWindow)

	sum := math.Min(engagement, EngagementCeiling)/EngagementCeiling*EngagementWeight +
		math.Min(velocity, VelocityCeiling)/VelocityCeiling*VelocityWeight +
		recency*RecencyWeight

	viral := round(sum*durationBonus(in.DurationSeconds), 2)

	return Result{
		Viral:          math.Max(0, math.Min(100, viral)),
		EngagementRate: round(engagement, 4),
		ViewVelocity:   round(velocity, 2),
	}
}

// Now scores in against the current wall clock.
func Now(in Input) Result {
	return Compute(in, time.Now())
}

func durationBonus(d float64) float64 {
	switch {
	case d > 0 && d <= 60:
		return ShortBonus
	case d > 180:
		return LongMalus
	}
	return 1.0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
