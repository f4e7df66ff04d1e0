package gamify

// levelThresholds[i] is the minimum cumulative score for level i+1. The table
// is monotone, so LevelForPoints is non-decreasing in total points.
var levelThresholds = []int{0, 12, 50, 120, 250, 500, 1200, 2000, 5000, 10000}

// MaxLevel is the highest reachable level.
const MaxLevel = 10

// LevelForPoints returns the highest level whose threshold is met.
func LevelForPoints(totalPoints int) int {
	level := 1
	for i, threshold := range levelThresholds {
		if totalPoints >= threshold {
			level = i + 1
		}
	}
	return level
}

// PointsToNextLevel returns how many more points reach the next level, or 0
// at the cap.
func PointsToNextLevel(totalPoints int) int {
	level := LevelForPoints(totalPoints)
	if level >= MaxLevel {
		return 0
	}
	return levelThresholds[level] - totalPoints
}
