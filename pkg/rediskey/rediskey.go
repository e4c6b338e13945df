package rediskey

import "fmt"

// Read-side cache and notification keys (global convention across services)
const (
	StudentPrefix       = "student"
	NotifyStudentPrefix = "notify:student"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildStudentKey returns "student:{studentID}"
func BuildStudentKey(studentID string) string {
	return NamespaceKey(StudentPrefix, studentID)
}

// BuildStudentCourseKey returns "student:{studentID}:course:{courseID}"
func BuildStudentCourseKey(studentID, courseID string) string {
	return fmt.Sprintf("%s:%s:course:%s", StudentPrefix, studentID, courseID)
}

// BuildNotifyChannel returns "notify:student:{studentID}", the pub/sub
// channel connected clients subscribe on.
func BuildNotifyChannel(studentID string) string {
	return NamespaceKey(NotifyStudentPrefix, studentID)
}
