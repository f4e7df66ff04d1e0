// Package gamify holds the pure points and leveling rules. No I/O: every
// result is recomputable from the points ledger alone.
package gamify

import "time"

const (
	// pointsDivisor converts shillings to base points: floor(amount / 50).
	pointsDivisor = 50

	firstDonationBonus = 10
)

// tierBonuses award extra points for large donations. Highest matching tier
// only.
var tierBonuses = []struct {
	Threshold float64
	Bonus     int
}{
	{10000, 50},
	{5000, 20},
	{1000, 5},
}

// streakMultipliers scale points by consecutive-day donation streaks.
// Highest matching tier only, applied after the additive bonuses.
var streakMultipliers = []struct {
	Days       int
	Multiplier float64
}{
	{30, 2.0},
	{14, 1.5},
	{7, 1.25},
	{3, 1.1},
}

// DonorHistory is the slice of a donor's past the points rules depend on.
type DonorHistory struct {
	// CompletedDonations counts completed donations before the one being
	// scored. Zero earns the first-time bonus.
	CompletedDonations int

	// StreakDays is the length of the consecutive-day donation streak
	// including the day of the donation being scored.
	StreakDays int
}

// PointsForDonation scores a single donation:
// base floor(amount/50), plus first-time and large-donation bonuses, then the
// streak multiplier, floored to an integer.
func PointsForDonation(amount float64, history DonorHistory) int {
	if amount <= 0 {
		return 0
	}

	points := int(amount) / pointsDivisor

	if history.CompletedDonations == 0 {
		points += firstDonationBonus
	}

	for _, tier := range tierBonuses {
		if amount >= tier.Threshold {
			points += tier.Bonus
			break
		}
	}

	for _, s := range streakMultipliers {
		if history.StreakDays >= s.Days {
			points = int(float64(points) * s.Multiplier)
			break
		}
	}

	return points
}

// StreakDays computes the consecutive-day streak ending at now, given the
// distinct calendar days (any order) on which the donor previously completed
// donations. The donation being scored counts as day one even when the donor
// has no history.
func StreakDays(days []time.Time, now time.Time) int {
	donated := make(map[string]bool, len(days))
	for _, d := range days {
		donated[d.UTC().Format("2006-01-02")] = true
	}

	streak := 1
	day := now.UTC().Truncate(24 * time.Hour)
	for {
		day = day.AddDate(0, 0, -1)
		if !donated[day.Format("2006-01-02")] {
			break
		}
		streak++
	}
	return streak
}
