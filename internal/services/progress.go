package services

import (
	"context"
	"log"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
)

// ComputeCourseProgress is the mean lesson progress rounded down. Lessons
// without a record count as 0 and an empty course is 0.
func ComputeCourseProgress(lessons []*models.Lesson, byLesson map[string]*models.LessonProgress) int {
	if len(lessons) == 0 {
		return 0
	}
	sum := 0
	for _, l := range lessons {
		if p := byLesson[l.ID]; p != nil {
			sum += p.Progress
		}
	}
	return sum / len(lessons)
}

// IsLessonUnlocked reports whether the lesson has no prerequisite or its
// prerequisite is completed.
func IsLessonUnlocked(lesson *models.Lesson, byLesson map[string]*models.LessonProgress) bool {
	if lesson.PrerequisiteLessonID == nil || *lesson.PrerequisiteLessonID == "" {
		return true
	}
	p := byLesson[*lesson.PrerequisiteLessonID]
	return p != nil && p.Completed
}

func completedLessons(lessons []*models.Lesson, byLesson map[string]*models.LessonProgress) int {
	n := 0
	for _, l := range lessons {
		if p := byLesson[l.ID]; p != nil && p.Completed {
			n++
		}
	}
	return n
}

type LessonState struct {
	Lesson   *models.Lesson         `json:"lesson"`
	Progress *models.LessonProgress `json:"progress,omitempty"`
	Unlocked bool                   `json:"unlocked"`
}

type CourseProgress struct {
	Enrollment       *models.Enrollment `json:"enrollment"`
	Progress         int                `json:"progress"`
	LessonsCompleted int                `json:"lessons_completed"`
	TotalLessons     int                `json:"total_lessons"`
	Lessons          []LessonState      `json:"lessons"`
}

// ProgressService records lesson progress and keeps the cached enrollment
// aggregate in step with it.
type ProgressService struct {
	lessons     *repository.LessonRepo
	progress    *repository.ProgressRepo
	enrollments *repository.EnrollmentRepo
	notifier    *Notifier
	now         func() time.Time
}

func NewProgressService(lessons *repository.LessonRepo, progress *repository.ProgressRepo, enrollments *repository.EnrollmentRepo, notifier *Notifier) *ProgressService {
	return &ProgressService{
		lessons:     lessons,
		progress:    progress,
		enrollments: enrollments,
		notifier:    notifier,
		now:         time.Now,
	}
}

// OwnedEnrollment loads an enrollment, hiding other users' enrollments.
func (s *ProgressService) OwnedEnrollment(ctx context.Context, userID, enrollmentID string) (*models.Enrollment, error) {
	e, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, &apperr.NotFoundError{Message: "Enrollment not found"}
	}
	return e, nil
}

// MarkLessonProgress upserts the single progress record for the pair.
// Completing forces progress to 100. The enrollment aggregate is refreshed
// afterwards; a failed refresh is logged and caught up on the next read.
func (s *ProgressService) MarkLessonProgress(ctx context.Context, enrollmentID, lessonID string, progress int, completed bool) (*models.LessonProgress, error) {
	if progress < 0 || progress > 100 {
		return nil, apperr.Invalid("progress", "Progress must be between 0 and 100")
	}

	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.CourseID != enrollment.CourseID {
		return nil, &apperr.NotFoundError{Message: "Lesson not found in this course"}
	}

	record, err := s.progress.Get(ctx, enrollmentID, lessonID)
	if apperr.IsNotFound(err) {
		record, err = models.NewLessonProgress(enrollmentID, lessonID)
	}
	if err != nil {
		return nil, err
	}

	if completed {
		record.MarkAsCompleted()
	} else {
		// The caller's flag wins over the value, so a lesson at 100 can be
		// reopened.
		if err := record.SetProgress(progress); err != nil {
			return nil, err
		}
		record.LastAccessedAt = s.now().UTC()
		record.SetCompleted(false)
	}

	if err := s.progress.Upsert(ctx, record); err != nil {
		return nil, err
	}

	if _, err := s.RefreshEnrollment(ctx, enrollmentID); err != nil {
		log.Printf("progress: refresh enrollment %s: %v", enrollmentID, err)
	}
	return record, nil
}

// RefreshEnrollment recomputes and stores the enrollment's cached aggregate.
func (s *ProgressService) RefreshEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	view, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, view); err != nil {
		return nil, err
	}
	return view.Enrollment, nil
}

// CourseProgress computes the course view from the current records. A stale
// cached aggregate is brought up to date on the way.
func (s *ProgressService) CourseProgress(ctx context.Context, enrollmentID string) (*CourseProgress, error) {
	view, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	e := view.Enrollment
	if e.Progress != view.Progress || e.LessonsCompleted != view.LessonsCompleted || e.TotalLessons != view.TotalLessons {
		if err := s.apply(ctx, view); err != nil {
			log.Printf("progress: refresh enrollment %s: %v", enrollmentID, err)
		}
	}
	return view, nil
}

// WatchCourseProgress streams the course percentage, first as it is now and
// then after every progress write for the enrollment.
func (s *ProgressService) WatchCourseProgress(ctx context.Context, enrollmentID string) (<-chan int, error) {
	e, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.publishedLessons(ctx, e.CourseID)
	if err != nil {
		return nil, err
	}
	maps, err := s.progress.Watch(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	out := make(chan int)
	go func() {
		defer close(out)
		for byLesson := range maps {
			select {
			case out <- ComputeCourseProgress(lessons, byLesson):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// AttemptSubmitted folds a graded attempt into the enrollment's quiz average.
func (s *ProgressService) AttemptSubmitted(ctx context.Context, quiz *models.Quiz, attempt models.QuizAttempt) {
	if quiz.CourseID == "" {
		return
	}
	e, err := s.enrollments.Find(ctx, attempt.UserID, quiz.CourseID)
	if apperr.IsNotFound(err) {
		return
	}
	if err != nil {
		log.Printf("progress: quiz score for %s: %v", attempt.ID, err)
		return
	}
	e.RecordQuizScore(attempt.Score)
	if err := s.enrollments.Save(ctx, e); err != nil {
		log.Printf("progress: quiz score for %s: %v", attempt.ID, err)
	}
}

func (s *ProgressService) load(ctx context.Context, enrollmentID string) (*CourseProgress, error) {
	e, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.publishedLessons(ctx, e.CourseID)
	if err != nil {
		return nil, err
	}
	byLesson, err := s.progress.ByLesson(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	view := &CourseProgress{
		Enrollment:       e,
		Progress:         ComputeCourseProgress(lessons, byLesson),
		LessonsCompleted: completedLessons(lessons, byLesson),
		TotalLessons:     len(lessons),
		Lessons:          make([]LessonState, 0, len(lessons)),
	}
	for _, l := range lessons {
		view.Lessons = append(view.Lessons, LessonState{
			Lesson:   l,
			Progress: byLesson[l.ID],
			Unlocked: IsLessonUnlocked(l, byLesson),
		})
	}
	return view, nil
}

func (s *ProgressService) apply(ctx context.Context, view *CourseProgress) error {
	e := view.Enrollment
	justCompleted := e.ApplyCourseProgress(view.Progress, view.LessonsCompleted, view.TotalLessons, s.now().UTC())
	if err := s.enrollments.Save(ctx, e); err != nil {
		return err
	}
	if justCompleted && s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, e.UserID, models.NotifyCourseCompleted, "Course completed",
			"You finished every lesson in this course.",
			map[string]string{"course_id": e.CourseID, "enrollment_id": e.ID}); err != nil {
			log.Printf("progress: completion notice for %s: %v", e.ID, err)
		}
	}
	return nil
}

func (s *ProgressService) publishedLessons(ctx context.Context, courseID string) ([]*models.Lesson, error) {
	all, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	published := all[:0]
	for _, l := range all {
		if l.IsPublished {
			published = append(published, l)
		}
	}
	return published, nil
}
