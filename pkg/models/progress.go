package models

// LessonProgress records that a user completed a lesson. The storage key is
// the (userId, lessonId) pair, so at most one row can exist per pair.
type LessonProgress struct {
	// Keys
	PK string `dynamodbav:"pk" json:"-"`
	SK string `dynamodbav:"sk" json:"-"`

	// Attributes
	ProgressID string `dynamodbav:"progress_id" json:"progressId"`
	UserID     string `dynamodbav:"user_id" json:"userId"`
	LessonID   string `dynamodbav:"lesson_id" json:"lessonId"`
	// CourseID is denormalized for read performance. Historical rows may
	// carry an empty value, so aggregation must always rederive course
	// membership through the lesson/section/course hierarchy.
	CourseID    string `dynamodbav:"course_id,omitempty" json:"courseId,omitempty"`
	CompletedAt string `dynamodbav:"completed_at" json:"completedAt"`
	UpdatedAt   string `dynamodbav:"updated_at" json:"updatedAt"`
}

// CourseProgress is the aggregate completion state of one user in one course.
type CourseProgress struct {
	Enrolled         bool `json:"enrolled"`
	TotalLessons     int  `json:"totalLessons"`
	CompletedLessons int  `json:"completedLessons"`
	Percentage       int  `json:"percentage"`
}
