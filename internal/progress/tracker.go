// Package progress implements lesson completion tracking and per-course
// aggregation. All reads join through the course hierarchy, so progress rows
// for lessons that were removed from a course never inflate the counts.
package progress

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amillerrr/lms-pipeline/internal/metrics"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

var tracer = otel.Tracer("lms-progress")

// Store persists per-lesson completion rows.
type Store interface {
	Upsert(ctx context.Context, userID, lessonID, courseID string) (*models.LessonProgress, error)
	Delete(ctx context.Context, userID, lessonID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.LessonProgress, error)
}

// Catalog reads the course hierarchy.
type Catalog interface {
	ResolveCourseForLesson(ctx context.Context, lessonID string) (string, error)
	LessonsInCourse(ctx context.Context, courseID string) ([]string, error)
}

// Enrollments answers whether a user may touch a course.
type Enrollments interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// CompleteResult is the completion timestamp plus the recomputed course
// aggregate, so the client can update its course view without a second
// round trip.
type CompleteResult struct {
	CompletedAt string                 `json:"completedAt"`
	Progress    *models.CourseProgress `json:"progress"`
}

// ToggleResult is the state after a toggle, with enough aggregate context
// for the client to update its course view without a second round trip.
type ToggleResult struct {
	Completed          bool                   `json:"completed"`
	CompletedAt        string                 `json:"completedAt,omitempty"`
	Progress           *models.CourseProgress `json:"progress"`
	CompletedLessonIDs []string               `json:"completedLessonIds"`
}

// Tracker coordinates progress mutations and aggregation.
type Tracker struct {
	store       Store
	catalog     Catalog
	enrollments Enrollments
	log         *slog.Logger
}

// Config holds tracker dependencies.
type Config struct {
	Store       Store
	Catalog     Catalog
	Enrollments Enrollments
	Logger      *slog.Logger
}

// New creates a Tracker with the given configuration.
func New(cfg *Config) *Tracker {
	return &Tracker{
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		enrollments: cfg.Enrollments,
		log:         cfg.Logger,
	}
}

// Complete marks a lesson done for a user and returns the timestamp along
// with the recomputed course aggregate. Completing an already-completed
// lesson refreshes the timestamps and succeeds.
func (t *Tracker) Complete(ctx context.Context, userID, lessonID string) (*CompleteResult, error) {
	ctx, span := tracer.Start(ctx, "complete-lesson",
		trace.WithAttributes(attribute.String("lesson.id", lessonID)))
	defer span.End()

	if lessonID == "" {
		return nil, models.ErrMissingLessonID
	}

	// Existence is checked before enrollment so an unknown lesson reads as
	// 404 rather than 403.
	courseID, err := t.catalog.ResolveCourseForLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	if err := t.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}

	row, err := t.store.Upsert(ctx, userID, lessonID, courseID)
	if err != nil {
		return nil, err
	}

	completedIDs, total, err := t.completedInCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	metrics.ProgressWrites.WithLabelValues("complete").Inc()
	t.log.InfoContext(ctx, "Lesson completed",
		"userId", userID,
		"lessonId", lessonID,
		"courseId", courseID,
	)
	return &CompleteResult{
		CompletedAt: row.CompletedAt,
		Progress:    aggregate(true, total, len(completedIDs)),
	}, nil
}

// Toggle flips a lesson's completion for a user and returns the updated
// course aggregate. The flip is a single storage statement in each
// direction, so concurrent toggles settle on one of the two valid states.
func (t *Tracker) Toggle(ctx context.Context, userID, courseID, lessonID string) (*ToggleResult, error) {
	ctx, span := tracer.Start(ctx, "toggle-lesson",
		trace.WithAttributes(
			attribute.String("course.id", courseID),
			attribute.String("lesson.id", lessonID),
		))
	defer span.End()

	if lessonID == "" {
		return nil, models.ErrMissingLessonID
	}

	actualCourse, err := t.catalog.ResolveCourseForLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if actualCourse != courseID {
		return nil, models.ErrLessonNotInCourse
	}

	if err := t.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}

	removed, err := t.store.Delete(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	result := &ToggleResult{}
	if removed {
		metrics.ProgressWrites.WithLabelValues("toggle_off").Inc()
	} else {
		row, err := t.store.Upsert(ctx, userID, lessonID, courseID)
		if err != nil {
			return nil, err
		}
		result.Completed = true
		result.CompletedAt = row.CompletedAt
		metrics.ProgressWrites.WithLabelValues("toggle_on").Inc()
	}

	completedIDs, total, err := t.completedInCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	result.CompletedLessonIDs = completedIDs
	result.Progress = aggregate(true, total, len(completedIDs))

	t.log.InfoContext(ctx, "Lesson toggled",
		"userId", userID,
		"lessonId", lessonID,
		"courseId", courseID,
		"completed", result.Completed,
	)
	return result, nil
}

// Progress aggregates a user's completion across one course. Users who are
// not enrolled get a zeroed report rather than an error.
func (t *Tracker) Progress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error) {
	ctx, span := tracer.Start(ctx, "course-progress",
		trace.WithAttributes(attribute.String("course.id", courseID)))
	defer span.End()

	if courseID == "" {
		return nil, models.ErrCourseNotFound
	}

	enrolled, err := t.enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return &models.CourseProgress{}, nil
	}

	completedIDs, total, err := t.completedInCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return aggregate(true, total, len(completedIDs)), nil
}

// CompletedLessonIDs lists the lessons a user finished in a course, in
// course order.
func (t *Tracker) CompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	if err := t.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}

	completedIDs, _, err := t.completedInCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return completedIDs, nil
}

func (t *Tracker) requireEnrollment(ctx context.Context, userID, courseID string) error {
	enrolled, err := t.enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return models.ErrNotEnrolled
	}
	return nil
}

// completedInCourse joins the user's progress rows against the course's
// current lesson list. It returns the completed ids in course order plus the
// course's lesson count.
func (t *Tracker) completedInCourse(ctx context.Context, userID, courseID string) ([]string, int, error) {
	lessons, err := t.catalog.LessonsInCourse(ctx, courseID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := t.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	done := make(map[string]bool, len(rows))
	for _, row := range rows {
		done[row.LessonID] = true
	}

	completed := make([]string, 0, len(lessons))
	for _, lessonID := range lessons {
		if done[lessonID] {
			completed = append(completed, lessonID)
		}
	}
	return completed, len(lessons), nil
}

func aggregate(enrolled bool, total, completed int) *models.CourseProgress {
	pct := 0
	if total > 0 {
		pct = int(math.Round(100 * float64(completed) / float64(total)))
	}
	return &models.CourseProgress{
		Enrolled:         enrolled,
		TotalLessons:     total,
		CompletedLessons: completed,
		Percentage:       pct,
	}
}
