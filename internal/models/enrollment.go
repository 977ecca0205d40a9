package models

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentSuspended EnrollmentStatus = "suspended"
	EnrollmentExpired   EnrollmentStatus = "expired"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// EnrollmentID is the document id of a user's enrollment in a course.
func EnrollmentID(userID, courseID string) string {
	return userID + "_" + courseID
}

type Enrollment struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	CourseID          string           `json:"course_id"`
	Status            EnrollmentStatus `json:"status"`
	Progress          int              `json:"progress"`
	LessonsCompleted  int              `json:"lessons_completed"`
	TotalLessons      int              `json:"total_lessons"`
	TimeSpentMinutes  int              `json:"time_spent_minutes"`
	AverageQuizScore  float64          `json:"average_quiz_score"`
	QuizzesTaken      int              `json:"quizzes_taken"`
	CertificateIssued bool             `json:"certificate_issued"`
	EnrolledAt        time.Time        `json:"enrolled_at"`
	LastAccessedAt    time.Time        `json:"last_accessed_at"`
	CompletionDate    *time.Time       `json:"completion_date"`
	LastReminderAt    *time.Time       `json:"last_reminder_at,omitempty"`
}

func NewEnrollment(userID, courseID string, now time.Time) *Enrollment {
	return &Enrollment{
		ID:             EnrollmentID(userID, courseID),
		UserID:         userID,
		CourseID:       courseID,
		Status:         EnrollmentActive,
		EnrolledAt:     now,
		LastAccessedAt: now,
	}
}

// ApplyCourseProgress stores a recomputed aggregate. It reports whether this
// call moved the enrollment to completed.
func (e *Enrollment) ApplyCourseProgress(progress, lessonsCompleted, totalLessons int, now time.Time) bool {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	e.Progress = progress
	e.LessonsCompleted = lessonsCompleted
	e.TotalLessons = totalLessons
	e.LastAccessedAt = now

	if progress == 100 && e.Status != EnrollmentCompleted {
		e.Status = EnrollmentCompleted
		e.CompletionDate = &now
		return true
	}
	return false
}

// RecordQuizScore folds a finished attempt into the running average.
func (e *Enrollment) RecordQuizScore(score int) {
	total := e.AverageQuizScore*float64(e.QuizzesTaken) + float64(score)
	e.QuizzesTaken++
	e.AverageQuizScore = total / float64(e.QuizzesTaken)
}

func (e *Enrollment) IsActive() bool { return e.Status == EnrollmentActive }

type EnrollmentStats struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	AverageProgress float64 `json:"average_progress"`
	CompletionRate  float64 `json:"completion_rate"`
}

func ComputeEnrollmentStats(enrollments []Enrollment) EnrollmentStats {
	stats := EnrollmentStats{Total: len(enrollments)}
	if len(enrollments) == 0 {
		return stats
	}

	sum := 0
	for _, e := range enrollments {
		switch e.Status {
		case EnrollmentActive:
			stats.Active++
		case EnrollmentCompleted:
			stats.Completed++
		}
		sum += e.Progress
	}
	stats.AverageProgress = float64(sum) / float64(len(enrollments))
	stats.CompletionRate = float64(stats.Completed) / float64(len(enrollments)) * 100
	return stats
}

type Course struct {
	ID             string    `json:"id" yaml:"id"`
	Title          string    `json:"title" yaml:"title"`
	Description    string    `json:"description" yaml:"description"`
	InstructorName string    `json:"instructor_name" yaml:"instructor"`
	IsPublished    bool      `json:"is_published" yaml:"published"`
	LessonCount    int       `json:"lesson_count" yaml:"-"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
}
