package models

import (
	"errors"
	"fmt"
	"time"

	"learnizone-backend/internal/apperr"
)

type CreateResourceRequest struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	URL           string `json:"url"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	MimeType      string `json:"mime_type"`
}

type CreateLessonRequest struct {
	CourseID             string                  `json:"course_id" validate:"required"`
	SectionID            string                  `json:"section_id"`
	Title                string                  `json:"title" validate:"required"`
	Description          string                  `json:"description"`
	Content              string                  `json:"content"`
	Type                 string                  `json:"type"`
	OrderIndex           int                     `json:"order_index"`
	DurationMinutes      int                     `json:"duration_minutes"`
	ContentURL           string                  `json:"content_url"`
	PrerequisiteLessonID *string                 `json:"prerequisite_lesson_id"`
	IsFree               bool                    `json:"is_free"`
	IsPublished          *bool                   `json:"is_published"`
	Resources            []CreateResourceRequest `json:"resources" validate:"max=20"`
}

// fieldErrors gathers setter failures into one ValidationError.
type fieldErrors map[string]string

func (f fieldErrors) add(prefix string, err error) {
	if err == nil {
		return
	}
	var v *apperr.ValidationError
	if !errors.As(err, &v) {
		f[prefix] = err.Error()
		return
	}
	for k, msg := range v.Fields {
		if prefix != "" {
			k = prefix + "." + k
		}
		f[k] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &apperr.ValidationError{Fields: f}
}

// Build runs every field through its setter and reports all violations at
// once.
func (req CreateLessonRequest) Build(id string) (*Lesson, error) {
	l := NewLesson(id, req.CourseID)
	errs := fieldErrors{}

	errs.add("", l.SetTitle(req.Title))
	errs.add("", l.SetDescription(req.Description))
	errs.add("", l.SetContentURL(req.ContentURL))
	errs.add("", l.SetDuration(req.DurationMinutes))
	errs.add("", l.SetOrderIndex(req.OrderIndex))
	l.SetType(req.Type)

	l.SectionID = req.SectionID
	l.Content = req.Content
	l.IsFree = req.IsFree
	if req.IsPublished != nil {
		l.IsPublished = *req.IsPublished
	}
	if req.PrerequisiteLessonID != nil && *req.PrerequisiteLessonID != "" {
		prereq := *req.PrerequisiteLessonID
		l.PrerequisiteLessonID = &prereq
	}

	for i, rr := range req.Resources {
		prefix := fmt.Sprintf("resources[%d]", i)
		r, err := rr.Build(fmt.Sprintf("%s-r%d", id, i+1))
		if err != nil {
			errs.add(prefix, err)
			continue
		}
		errs.add(prefix, l.AddResource(*r))
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (req CreateResourceRequest) Build(fallbackID string) (*LessonResource, error) {
	r := &LessonResource{ID: req.ID}
	if r.ID == "" {
		r.ID = fallbackID
	}
	errs := fieldErrors{}

	errs.add("", r.SetTitle(req.Title))
	errs.add("", r.SetDescription(req.Description))
	errs.add("", r.SetURL(req.URL))
	errs.add("", r.SetFileSize(req.FileSizeBytes))
	errs.add("", r.SetMimeType(req.MimeType))
	errs.add("", r.SetType(ResourceType(req.Type)))

	if err := errs.err(); err != nil {
		return nil, err
	}
	return r, nil
}

// Touch stamps UpdatedAt with now.
func (l *Lesson) Touch(now time.Time) {
	if err := l.SetUpdatedAt(now); err != nil {
		l.UpdatedAt = l.CreatedAt
	}
}
