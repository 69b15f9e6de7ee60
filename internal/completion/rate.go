package completion

import "math"

// Percentage completed/total as an integer percentage rounded half up,
// 0 when total is 0 and never above 100
func Percentage(completed, total int64) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Floor(float64(completed*100)/float64(total) + 0.5))
}
