package models

import (
	"fmt"
	"regexp"
	"strings"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
)

type ResourceType string

const (
	ResourcePDF      ResourceType = "pdf"
	ResourceDocument ResourceType = "document"
	ResourceImage    ResourceType = "image"
	ResourceVideo    ResourceType = "video"
	ResourceAudio    ResourceType = "audio"
	ResourceLink     ResourceType = "link"
	ResourceExercise ResourceType = "exercise"
)

const (
	MaxResourceTitleLength       = 100
	MaxResourceDescriptionLength = 500
	MaxResourceFileSize          = int64(1 << 30)
)

var mimeTypePattern = regexp.MustCompile(`^[a-zA-Z0-9]+/[a-zA-Z0-9\-+.*]+$`)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourcePDF, ResourceDocument, ResourceImage, ResourceVideo,
		ResourceAudio, ResourceLink, ResourceExercise:
		return true
	}
	return false
}

func (t ResourceType) defaultMimeType() string {
	switch t {
	case ResourcePDF:
		return "application/pdf"
	case ResourceDocument:
		return "application/msword"
	case ResourceImage:
		return "image/*"
	case ResourceVideo:
		return "video/*"
	case ResourceAudio:
		return "audio/*"
	}
	return ""
}

// LessonResource is an attachment of a lesson: a file, a link or an exercise.
type LessonResource struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Type          ResourceType   `json:"type"`
	URL           string         `json:"url"`
	FileSizeBytes int64          `json:"file_size_bytes"`
	MimeType      string         `json:"mime_type,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (r *LessonResource) SetTitle(title string) error {
	v, err := cleanText("title", title, MaxResourceTitleLength, true)
	if err != nil {
		return err
	}
	r.Title = v
	return nil
}

func (r *LessonResource) SetDescription(description string) error {
	v, err := cleanText("description", description, MaxResourceDescriptionLength, false)
	if err != nil {
		return err
	}
	r.Description = v
	return nil
}

func (r *LessonResource) SetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if !isWellFormedURL(raw) {
		return apperr.Invalid("url", "Invalid URL")
	}
	r.URL = raw
	return nil
}

func (r *LessonResource) SetFileSize(size int64) error {
	if size < 0 || size > MaxResourceFileSize {
		return apperr.Invalid("file_size_bytes", "File size must be between 0 and 1 GB")
	}
	r.FileSizeBytes = size
	return nil
}

// SetMimeType accepts an empty value, which clears the MIME type.
func (r *LessonResource) SetMimeType(mime string) error {
	mime = strings.TrimSpace(mime)
	if mime != "" && !mimeTypePattern.MatchString(mime) {
		return apperr.Invalid("mime_type", "Invalid MIME type")
	}
	r.MimeType = mime
	return nil
}

// SetType also fills a default MIME type when none is set.
func (r *LessonResource) SetType(t ResourceType) error {
	if !t.Valid() {
		return apperr.Invalid("type", fmt.Sprintf("Unknown resource type %q", t))
	}
	r.Type = t
	if r.MimeType == "" {
		r.MimeType = t.defaultMimeType()
	}
	return nil
}

func (r *LessonResource) IsValid() bool {
	return r.Validate() == nil
}

// Validate reports every violated constraint at once.
func (r *LessonResource) Validate() error {
	fields := make(map[string]string)

	title := strings.TrimSpace(r.Title)
	switch {
	case title == "":
		fields["title"] = "Title is required"
	case len([]rune(r.Title)) > MaxResourceTitleLength:
		fields["title"] = "Title is too long"
	case containsForbidden(r.Title):
		fields["title"] = "Title contains forbidden characters"
	}
	if len([]rune(r.Description)) > MaxResourceDescriptionLength {
		fields["description"] = "Description is too long"
	} else if containsForbidden(r.Description) {
		fields["description"] = "Description contains forbidden characters"
	}
	if !r.Type.Valid() {
		fields["type"] = "Unknown resource type"
	}
	if !isWellFormedURL(r.URL) {
		fields["url"] = "Invalid URL"
	}
	if r.FileSizeBytes < 0 || r.FileSizeBytes > MaxResourceFileSize {
		fields["file_size_bytes"] = "File size must be between 0 and 1 GB"
	}
	if r.MimeType != "" && !mimeTypePattern.MatchString(r.MimeType) {
		fields["mime_type"] = "Invalid MIME type"
	}
	if !validMetadata(r.Metadata) {
		fields["metadata"] = "Metadata keys must be non-empty and values non-null"
	}

	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (r *LessonResource) FormattedFileSize() string {
	const unit = 1024
	size := r.FileSizeBytes
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit && exp < 2; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMG"[exp])
}

func (r *LessonResource) IsDownloadable() bool { return r.Type != ResourceLink }

func (r *LessonResource) IsViewable() bool {
	switch r.Type {
	case ResourcePDF, ResourceImage, ResourceVideo, ResourceAudio, ResourceLink:
		return true
	}
	return false
}

func (r *LessonResource) IsImage() bool    { return r.Type == ResourceImage }
func (r *LessonResource) IsVideo() bool    { return r.Type == ResourceVideo }
func (r *LessonResource) IsAudio() bool    { return r.Type == ResourceAudio }
func (r *LessonResource) IsDocument() bool { return r.Type == ResourceDocument || r.Type == ResourcePDF }
func (r *LessonResource) IsLink() bool     { return r.Type == ResourceLink }
func (r *LessonResource) IsExercise() bool { return r.Type == ResourceExercise }

func (r *LessonResource) ToMap() (map[string]any, error) {
	return docstore.Encode(r)
}

func LessonResourceFromMap(m map[string]any) (*LessonResource, error) {
	var r LessonResource
	if err := docstore.Decode(m, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
