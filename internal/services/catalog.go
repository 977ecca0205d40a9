package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
)

const durationLookupTimeout = 15 * time.Second

// DurationSource reads the running time of a hosted video.
type DurationSource interface {
	VideoDurationMinutes(ctx context.Context, videoURL string) (int, error)
}

// LessonService serves the published lessons of a course.
type LessonService struct {
	lessons   *repository.LessonRepo
	courses   *repository.CourseRepo
	durations DurationSource
}

func NewLessonService(lessons *repository.LessonRepo, courses *repository.CourseRepo, durations DurationSource) *LessonService {
	return &LessonService{lessons: lessons, courses: courses, durations: durations}
}

// ListForCourse returns the course's published lessons in order.
func (s *LessonService) ListForCourse(ctx context.Context, courseID string) ([]*models.Lesson, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	all, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	lessons := make([]*models.Lesson, 0, len(all))
	for _, l := range all {
		if l.IsPublished {
			lessons = append(lessons, l)
		}
	}
	return lessons, nil
}

func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lesson.IsPublished {
		return nil, &apperr.NotFoundError{Message: "Lesson not found"}
	}
	return lesson, nil
}

// Next returns the lesson after id in course order.
func (s *LessonService) Next(ctx context.Context, id string) (*models.Lesson, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lessons, err := s.ListForCourse(ctx, current.CourseID)
	if err != nil {
		return nil, err
	}
	for i, l := range lessons {
		if l.ID != id {
			continue
		}
		if i+1 < len(lessons) {
			return lessons[i+1], nil
		}
		break
	}
	return nil, &apperr.NotFoundError{Message: "This is the last lesson in the course"}
}

// Create stores a new lesson. A video lesson without a duration gets one
// from the video's metadata when it can be read.
func (s *LessonService) Create(ctx context.Context, req models.CreateLessonRequest) (*models.Lesson, error) {
	if _, err := s.courses.GetByID(ctx, req.CourseID); err != nil {
		return nil, err
	}
	lesson, err := req.Build(uuid.NewString())
	if err != nil {
		return nil, err
	}

	if lesson.Type == models.LessonVideo && lesson.DurationMinutes == 0 && s.durations != nil && ExtractVideoID(lesson.ContentURL) != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, durationLookupTimeout)
		minutes, err := s.durations.VideoDurationMinutes(lookupCtx, lesson.ContentURL)
		cancel()
		if err != nil {
			log.Printf("lessons: duration lookup for %s: %v", lesson.ContentURL, err)
		} else if err := lesson.SetDuration(minutes); err == nil {
			lesson.Touch(time.Now().UTC())
		}
	}

	if err := s.lessons.Save(ctx, lesson); err != nil {
		return nil, err
	}
	return lesson, nil
}

// EnrollmentService manages which courses a learner takes.
type EnrollmentService struct {
	enrollments *repository.EnrollmentRepo
	courses     *repository.CourseRepo
	lessons     *repository.LessonRepo
	progress    *repository.ProgressRepo
	now         func() time.Time
}

func NewEnrollmentService(enrollments *repository.EnrollmentRepo, courses *repository.CourseRepo, lessons *repository.LessonRepo, progress *repository.ProgressRepo) *EnrollmentService {
	return &EnrollmentService{
		enrollments: enrollments,
		courses:     courses,
		lessons:     lessons,
		progress:    progress,
		now:         time.Now,
	}
}

func (s *EnrollmentService) Enroll(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, &apperr.NotFoundError{Message: "Course not found"}
	}

	_, err = s.enrollments.Find(ctx, userID, courseID)
	if err == nil {
		return nil, &apperr.ConflictError{Message: "Already enrolled in this course"}
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, l := range lessons {
		if l.IsPublished {
			total++
		}
	}

	e := models.NewEnrollment(userID, courseID, s.now().UTC())
	e.TotalLessons = total
	if err := s.enrollments.Save(ctx, e); err != nil {
		return nil, err
	}
	log.Printf("User %s enrolled in course %s", userID, courseID)
	return e, nil
}

// Unenroll removes the enrollment together with its lesson progress.
func (s *EnrollmentService) Unenroll(ctx context.Context, userID, courseID string) error {
	e, err := s.enrollments.Find(ctx, userID, courseID)
	if apperr.IsNotFound(err) {
		return &apperr.NotFoundError{Message: "Not enrolled in this course"}
	}
	if err != nil {
		return err
	}
	if err := s.progress.DeleteForEnrollment(ctx, e.ID); err != nil {
		return err
	}
	return s.enrollments.Delete(ctx, e.ID)
}

func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]models.Enrollment, error) {
	list, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Enrollment{}
	}
	return list, nil
}

func (s *EnrollmentService) Stats(ctx context.Context, userID string) (models.EnrollmentStats, error) {
	list, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return models.EnrollmentStats{}, err
	}
	return models.ComputeEnrollmentStats(list), nil
}
