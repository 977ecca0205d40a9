package models

import (
	"strings"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
)

const maxFutureAccess = 365 * 24 * time.Hour

// LessonProgressID is the document id of the single progress record kept per
// (enrollment, lesson) pair.
func LessonProgressID(enrollmentID, lessonID string) string {
	return enrollmentID + "_" + lessonID
}

// LessonProgress tracks one lesson for one enrollment.
// Completed implies CompletedAt is set.
type LessonProgress struct {
	ID               string         `json:"id"`
	EnrollmentID     string         `json:"enrollment_id"`
	LessonID         string         `json:"lesson_id"`
	Progress         int            `json:"progress"`
	Completed        bool           `json:"completed"`
	LastAccessedAt   time.Time      `json:"last_accessed_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
	TimeSpentMinutes int            `json:"time_spent_minutes"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type UpdateLessonProgressRequest struct {
	Progress  int  `json:"progress" validate:"gte=0,lte=100"`
	Completed bool `json:"completed"`
}

func NewLessonProgress(enrollmentID, lessonID string) (*LessonProgress, error) {
	p := &LessonProgress{LastAccessedAt: time.Now().UTC()}
	if err := p.SetEnrollmentID(enrollmentID); err != nil {
		return nil, err
	}
	if err := p.SetLessonID(lessonID); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LessonProgress) SetEnrollmentID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Invalid("enrollment_id", "Enrollment ID is required")
	}
	p.EnrollmentID = id
	p.ID = LessonProgressID(p.EnrollmentID, p.LessonID)
	return nil
}

func (p *LessonProgress) SetLessonID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Invalid("lesson_id", "Lesson ID is required")
	}
	p.LessonID = id
	p.ID = LessonProgressID(p.EnrollmentID, p.LessonID)
	return nil
}

func (p *LessonProgress) SetProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return apperr.Invalid("progress", "Progress must be between 0 and 100")
	}
	p.Progress = progress
	return nil
}

func (p *LessonProgress) SetLastAccessedAt(t time.Time) error {
	if !accessTimeInRange(t, time.Now()) {
		return apperr.Invalid("last_accessed_at", "Last access time is out of range")
	}
	p.LastAccessedAt = t
	return nil
}

func accessTimeInRange(t, now time.Time) bool {
	return !t.Before(time.Unix(0, 0)) && !t.After(now.Add(maxFutureAccess))
}

// SetCompleted keeps CompletedAt in step with the completed flag.
func (p *LessonProgress) SetCompleted(completed bool) {
	p.Completed = completed
	if completed {
		if p.CompletedAt == nil {
			now := time.Now().UTC()
			p.CompletedAt = &now
		}
		return
	}
	p.CompletedAt = nil
}

// UpdateProgress records progress and touches the access time; reaching 100
// completes the lesson.
func (p *LessonProgress) UpdateProgress(progress int) error {
	if err := p.SetProgress(progress); err != nil {
		return err
	}
	p.LastAccessedAt = time.Now().UTC()
	if progress == 100 {
		p.SetCompleted(true)
	}
	return nil
}

func (p *LessonProgress) MarkAsCompleted() {
	p.Progress = 100
	p.SetCompleted(true)
	p.LastAccessedAt = time.Now().UTC()
}

func (p *LessonProgress) Reset() {
	p.Progress = 0
	p.SetCompleted(false)
	p.TimeSpentMinutes = 0
	p.LastAccessedAt = time.Now().UTC()
}

func (p *LessonProgress) IsValid() bool {
	return p.Validate() == nil
}

func (p *LessonProgress) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(p.EnrollmentID) == "" {
		fields["enrollment_id"] = "Enrollment ID is required"
	}
	if strings.TrimSpace(p.LessonID) == "" {
		fields["lesson_id"] = "Lesson ID is required"
	}
	if p.Progress < 0 || p.Progress > 100 {
		fields["progress"] = "Progress must be between 0 and 100"
	}
	if !accessTimeInRange(p.LastAccessedAt, time.Now()) {
		fields["last_accessed_at"] = "Last access time is out of range"
	}
	if p.Completed && p.CompletedAt == nil {
		fields["completed_at"] = "Completed progress must have a completion time"
	}
	if !validMetadata(p.Metadata) {
		fields["metadata"] = "Metadata keys must be non-empty and values non-null"
	}

	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (p *LessonProgress) ToMap() (map[string]any, error) {
	return docstore.Encode(p)
}

func LessonProgressFromMap(m map[string]any) (*LessonProgress, error) {
	var p LessonProgress
	if err := docstore.Decode(m, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = LessonProgressID(p.EnrollmentID, p.LessonID)
	}
	return &p, nil
}
