package completion

const keyPrefix = "completion_rate:"

// OverallKey cache key of the system wide completion rate
const OverallKey = keyPrefix + "overall"

// LessonKey cache key of a lesson completion rate
func LessonKey(lessonID string) string {
	return keyPrefix + lessonID
}

// UserKey cache key of a user completion rate
func UserKey(userID string) string {
	return keyPrefix + "user:" + userID
}
