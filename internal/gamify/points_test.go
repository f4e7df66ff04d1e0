package gamify

import (
	"testing"
	"time"
)

func TestPointsForDonation(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		history DonorHistory
		want    int
	}{
		{
			name:    "base points only",
			amount:  500,
			history: DonorHistory{CompletedDonations: 3},
			want:    10,
		},
		{
			name:    "amount below divisor earns nothing",
			amount:  49,
			history: DonorHistory{CompletedDonations: 1},
			want:    0,
		},
		{
			name:    "first donation bonus",
			amount:  100,
			history: DonorHistory{CompletedDonations: 0},
			want:    12,
		},
		{
			name:    "first large donation stacks first-timer and tier bonus",
			amount:  2000,
			history: DonorHistory{CompletedDonations: 0},
			want:    55,
		},
		{
			name:    "tier bonus at 1000",
			amount:  1000,
			history: DonorHistory{CompletedDonations: 2},
			want:    25,
		},
		{
			name:    "only the highest tier bonus applies",
			amount:  10000,
			history: DonorHistory{CompletedDonations: 2},
			want:    250,
		},
		{
			name:    "tier bonus at 5000",
			amount:  5000,
			history: DonorHistory{CompletedDonations: 1},
			want:    120,
		},
		{
			name:    "streak multiplier applies after additive bonuses",
			amount:  500,
			history: DonorHistory{CompletedDonations: 5, StreakDays: 3},
			want:    11,
		},
		{
			name:    "only the highest streak multiplier applies",
			amount:  1000,
			history: DonorHistory{CompletedDonations: 5, StreakDays: 30},
			want:    50,
		},
		{
			name:    "fractional result is floored",
			amount:  150,
			history: DonorHistory{CompletedDonations: 4, StreakDays: 7},
			want:    3,
		},
		{
			name:    "zero amount",
			amount:  0,
			history: DonorHistory{CompletedDonations: 1},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PointsForDonation(tt.amount, tt.history)
			if got != tt.want {
				t.Errorf("PointsForDonation(%v, %+v) = %d, want %d", tt.amount, tt.history, got, tt.want)
			}
		})
	}
}

func TestPointsMonotonicInAmount(t *testing.T) {
	history := DonorHistory{CompletedDonations: 5}
	prev := 0
	for amount := 0.0; amount <= 12000; amount += 50 {
		got := PointsForDonation(amount, history)
		if got < prev {
			t.Fatalf("points decreased: %v KES earned %d, previous amount earned %d", amount, got, prev)
		}
		prev = got
	}
}

func TestStreakDays(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time {
		return now.AddDate(0, 0, -offset)
	}

	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{name: "no history", days: nil, want: 1},
		{
			name: "donated today only",
			days: []time.Time{day(0)},
			want: 1,
		},
		{
			name: "three consecutive days ending yesterday",
			days: []time.Time{day(1), day(2), day(3)},
			want: 4,
		},
		{
			name: "gap breaks the streak",
			days: []time.Time{day(0), day(1), day(3), day(4)},
			want: 2,
		},
		{
			name: "stale history does not extend the streak",
			days: []time.Time{day(5), day(6)},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StreakDays(tt.days, now)
			if got != tt.want {
				t.Errorf("StreakDays() = %d, want %d", got, tt.want)
			}
		})
	}
}
