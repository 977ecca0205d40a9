package models

import (
	"fmt"
	"strings"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
)

type LessonType string

const (
	LessonVideo       LessonType = "video"
	LessonAudio       LessonType = "audio"
	LessonText        LessonType = "text"
	LessonInteractive LessonType = "interactive"
	LessonQuiz        LessonType = "quiz"
	LessonAssignment  LessonType = "assignment"
	LessonLiveSession LessonType = "live_session"
	LessonDocument    LessonType = "document"
)

const (
	MaxLessonTitleLength       = 100
	MaxLessonDescriptionLength = 1000
	MaxLessonResources         = 20
)

// ParseLessonType maps unknown values to LessonText.
func ParseLessonType(s string) LessonType {
	switch t := LessonType(strings.ToLower(strings.TrimSpace(s))); t {
	case LessonVideo, LessonAudio, LessonText, LessonInteractive, LessonQuiz,
		LessonAssignment, LessonLiveSession, LessonDocument:
		return t
	}
	return LessonText
}

type Lesson struct {
	ID                   string           `json:"id"`
	CourseID             string           `json:"course_id"`
	SectionID            string           `json:"section_id,omitempty"`
	Title                string           `json:"title"`
	Description          string           `json:"description"`
	Content              string           `json:"content,omitempty"`
	Type                 LessonType       `json:"type"`
	OrderIndex           int              `json:"order_index"`
	DurationMinutes      int              `json:"duration_minutes"`
	ContentURL           string           `json:"content_url,omitempty"`
	Resources            []LessonResource `json:"resources"`
	PrerequisiteLessonID *string          `json:"prerequisite_lesson_id,omitempty"`
	IsFree               bool             `json:"is_free"`
	IsLocked             bool             `json:"is_locked"`
	IsPublished          bool             `json:"is_published"`
	Metadata             map[string]any   `json:"metadata,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// NewLesson returns a published text lesson stamped with the current time.
func NewLesson(id, courseID string) *Lesson {
	now := time.Now().UTC()
	return &Lesson{
		ID:          id,
		CourseID:    courseID,
		Type:        LessonText,
		Resources:   []LessonResource{},
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (l *Lesson) SetTitle(title string) error {
	v, err := cleanText("title", title, MaxLessonTitleLength, true)
	if err != nil {
		return err
	}
	l.Title = v
	return nil
}

func (l *Lesson) SetDescription(description string) error {
	v, err := cleanText("description", description, MaxLessonDescriptionLength, false)
	if err != nil {
		return err
	}
	l.Description = v
	return nil
}

func (l *Lesson) SetType(t string) {
	l.Type = ParseLessonType(t)
}

// SetContentURL clears the URL when given an empty string.
func (l *Lesson) SetContentURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" && !isWellFormedURL(raw) {
		return apperr.Invalid("content_url", "Invalid URL")
	}
	l.ContentURL = raw
	return nil
}

func (l *Lesson) SetDuration(minutes int) error {
	if minutes < 0 {
		return apperr.Invalid("duration_minutes", "Duration cannot be negative")
	}
	l.DurationMinutes = minutes
	return nil
}

func (l *Lesson) SetOrderIndex(index int) error {
	if index < 0 {
		return apperr.Invalid("order_index", "Order index cannot be negative")
	}
	l.OrderIndex = index
	return nil
}

func (l *Lesson) SetUpdatedAt(t time.Time) error {
	if t.Before(l.CreatedAt) {
		return apperr.Invalid("updated_at", "Updated time cannot precede creation time")
	}
	l.UpdatedAt = t
	return nil
}

func (l *Lesson) AddResource(r LessonResource) error {
	if len(l.Resources) >= MaxLessonResources {
		return apperr.Invalid("resources", fmt.Sprintf("A lesson can have at most %d resources", MaxLessonResources))
	}
	if err := r.Validate(); err != nil {
		return err
	}
	l.Resources = append(l.Resources, r)
	return nil
}

func (l *Lesson) IsValid() bool {
	return l.Validate() == nil
}

func (l *Lesson) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(l.ID) == "" {
		fields["id"] = "Lesson ID is required"
	}
	if strings.TrimSpace(l.CourseID) == "" {
		fields["course_id"] = "Course ID is required"
	}
	switch {
	case strings.TrimSpace(l.Title) == "":
		fields["title"] = "Title is required"
	case len([]rune(l.Title)) > MaxLessonTitleLength:
		fields["title"] = "Title is too long"
	case containsForbidden(l.Title):
		fields["title"] = "Title contains forbidden characters"
	}
	if len([]rune(l.Description)) > MaxLessonDescriptionLength {
		fields["description"] = "Description is too long"
	} else if containsForbidden(l.Description) {
		fields["description"] = "Description contains forbidden characters"
	}
	if l.OrderIndex < 0 {
		fields["order_index"] = "Order index cannot be negative"
	}
	if l.DurationMinutes < 0 {
		fields["duration_minutes"] = "Duration cannot be negative"
	}
	if l.ContentURL != "" && !isWellFormedURL(l.ContentURL) {
		fields["content_url"] = "Invalid URL"
	}
	if len(l.Resources) > MaxLessonResources {
		fields["resources"] = "Too many resources"
	}
	for i := range l.Resources {
		if !l.Resources[i].IsValid() {
			fields[fmt.Sprintf("resources[%d]", i)] = "Invalid resource"
		}
	}
	if !l.UpdatedAt.IsZero() && l.UpdatedAt.Before(l.CreatedAt) {
		fields["updated_at"] = "Updated time cannot precede creation time"
	}
	if !validMetadata(l.Metadata) {
		fields["metadata"] = "Metadata keys must be non-empty and values non-null"
	}

	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (l *Lesson) FormattedDuration() string {
	if l.DurationMinutes <= 0 {
		return "N/A"
	}
	hours, minutes := l.DurationMinutes/60, l.DurationMinutes%60
	if hours > 0 {
		return fmt.Sprintf("%dh %02dmin", hours, minutes)
	}
	return fmt.Sprintf("%dmin", minutes)
}

func (l *Lesson) HasVideo() bool {
	return l.Type == LessonVideo && l.ContentURL != ""
}

func (l *Lesson) HasAudio() bool {
	return l.Type == LessonAudio && l.ContentURL != ""
}

func (l *Lesson) ToMap() (map[string]any, error) {
	return docstore.Encode(l)
}

// LessonFromMap rebuilds a lesson; missing timestamps are regenerated.
func LessonFromMap(m map[string]any) (*Lesson, error) {
	var l Lesson
	if err := docstore.Decode(m, &l); err != nil {
		return nil, err
	}
	l.Type = ParseLessonType(string(l.Type))
	if _, ok := m["is_published"]; !ok {
		l.IsPublished = true
	}
	if l.Resources == nil {
		l.Resources = []LessonResource{}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	return &l, nil
}
