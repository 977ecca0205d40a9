package services

import (
	"context"
	"errors"
	"testing"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
)

type fixedDuration struct {
	minutes int
	err     error
	calls   int
}

func (p *fixedDuration) VideoDurationMinutes(context.Context, string) (int, error) {
	p.calls++
	return p.minutes, p.err
}

func TestLessonServiceListAndNext(t *testing.T) {
	f := newLearningFixture(t, 3)
	ctx := context.Background()

	hidden := models.NewLesson("draft", "course-1")
	hidden.Title = "Draft"
	hidden.OrderIndex = 9
	hidden.IsPublished = false
	if err := f.lessons.Save(ctx, hidden); err != nil {
		t.Fatalf("save lesson: %v", err)
	}

	svc := NewLessonService(f.lessons, f.courses, nil)

	lessons, err := svc.ListForCourse(ctx, "course-1")
	if err != nil {
		t.Fatalf("ListForCourse: %v", err)
	}
	if len(lessons) != 3 || lessons[0].ID != "lesson-1" || lessons[2].ID != "lesson-3" {
		t.Fatalf("unexpected lessons %v", lessons)
	}
	if _, err := svc.ListForCourse(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown course, got %v", err)
	}

	next, err := svc.Next(ctx, "lesson-1")
	if err != nil || next.ID != "lesson-2" {
		t.Fatalf("Next: %v %v", next, err)
	}
	if _, err := svc.Next(ctx, "lesson-3"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound after the last lesson, got %v", err)
	}
	if _, err := svc.Get(ctx, "draft"); !apperr.IsNotFound(err) {
		t.Errorf("expected unpublished lesson to be hidden, got %v", err)
	}
}

func TestLessonServiceCreate(t *testing.T) {
	f := newLearningFixture(t, 0)
	ctx := context.Background()
	durations := &fixedDuration{minutes: 12}
	svc := NewLessonService(f.lessons, f.courses, durations)

	lesson, err := svc.Create(ctx, models.CreateLessonRequest{
		CourseID:   "course-1",
		Title:      "Concurrency",
		Type:       "video",
		ContentURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Resources: []models.CreateResourceRequest{
			{Title: "Slides", Type: "pdf", URL: "https://cdn.example.com/slides.pdf"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if lesson.DurationMinutes != 12 || durations.calls != 1 {
		t.Errorf("expected looked-up duration, got %d after %d calls", lesson.DurationMinutes, durations.calls)
	}
	if len(lesson.Resources) != 1 || lesson.Resources[0].ID != lesson.ID+"-r1" {
		t.Errorf("unexpected resources %+v", lesson.Resources)
	}
	if _, err := f.lessons.GetByID(ctx, lesson.ID); err != nil {
		t.Errorf("expected lesson to be stored: %v", err)
	}

	durations.err = errors.New("unavailable")
	fallback, err := svc.Create(ctx, models.CreateLessonRequest{
		CourseID: "course-1", Title: "Select", Type: "video",
		ContentURL: "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Create with failing duration lookup: %v", err)
	}
	if fallback.DurationMinutes != 0 {
		t.Errorf("expected duration to stay 0, got %d", fallback.DurationMinutes)
	}

	if _, err := svc.Create(ctx, models.CreateLessonRequest{CourseID: "course-1", Title: ""}); !isValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if _, err := svc.Create(ctx, models.CreateLessonRequest{CourseID: "nope", Title: "Orphan"}); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown course, got %v", err)
	}
}

func TestEnrollmentLifecycle(t *testing.T) {
	f := newLearningFixture(t, 2)
	ctx := context.Background()

	if err := f.courses.Save(ctx, &models.Course{ID: "hidden", Title: "Hidden"}); err != nil {
		t.Fatalf("save course: %v", err)
	}
	if _, err := f.enrollment.Enroll(ctx, "user-1", "hidden"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound for an unpublished course, got %v", err)
	}

	e, err := f.enrollment.Enroll(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.TotalLessons != 2 || e.Status != models.EnrollmentActive {
		t.Errorf("unexpected enrollment %+v", e)
	}

	_, err = f.enrollment.Enroll(ctx, "user-1", "course-1")
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError on double enroll, got %v", err)
	}

	if _, err := f.progress.MarkLessonProgress(ctx, e.ID, "lesson-1", 100, true); err != nil {
		t.Fatalf("MarkLessonProgress: %v", err)
	}

	stats, err := f.enrollment.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 || stats.Active != 1 || stats.AverageProgress != 50 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := f.enrollment.Unenroll(ctx, "user-1", "course-1"); err != nil {
		t.Fatalf("Unenroll: %v", err)
	}
	mine, err := f.enrollment.ListMine(ctx, "user-1")
	if err != nil || len(mine) != 0 {
		t.Errorf("expected no enrollments, got %v %v", mine, err)
	}
	left, err := f.progressRepo.ByLesson(ctx, e.ID)
	if err != nil || len(left) != 0 {
		t.Errorf("expected progress to be removed, got %v %v", left, err)
	}
	if err := f.enrollment.Unenroll(ctx, "user-1", "course-1"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFound when not enrolled, got %v", err)
	}
}
