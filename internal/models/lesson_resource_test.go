package models

import (
	"strings"
	"testing"
)

func TestLessonResourceSetters(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(r *LessonResource) error
		wantErr bool
	}{
		{"valid title", func(r *LessonResource) error { return r.SetTitle("  Chapter 1 slides ") }, false},
		{"forbidden title", func(r *LessonResource) error { return r.SetTitle("<img>") }, true},
		{"long description clamps", func(r *LessonResource) error { return r.SetDescription(strings.Repeat("x", 800)) }, false},
		{"forbidden description", func(r *LessonResource) error { return r.SetDescription("a > b") }, true},
		{"valid url", func(r *LessonResource) error { return r.SetURL("https://example.com/f.pdf") }, false},
		{"malformed url", func(r *LessonResource) error { return r.SetURL("example dot com") }, true},
		{"negative size", func(r *LessonResource) error { return r.SetFileSize(-1) }, true},
		{"size at limit", func(r *LessonResource) error { return r.SetFileSize(MaxResourceFileSize) }, false},
		{"size over limit", func(r *LessonResource) error { return r.SetFileSize(MaxResourceFileSize + 1) }, true},
		{"valid mime", func(r *LessonResource) error { return r.SetMimeType("application/vnd.ms-excel") }, false},
		{"wildcard mime", func(r *LessonResource) error { return r.SetMimeType("image/*") }, false},
		{"malformed mime", func(r *LessonResource) error { return r.SetMimeType("pdf") }, true},
		{"unknown type", func(r *LessonResource) error { return r.SetType("hologram") }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r LessonResource
			err := tc.apply(&r)
			if tc.wantErr && !isValidationError(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLessonResourceTitleIsTrimmedAndClamped(t *testing.T) {
	var r LessonResource
	if err := r.SetTitle(" " + strings.Repeat("t", 120) + " "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Title) != MaxResourceTitleLength {
		t.Errorf("Expected %d chars, got %d", MaxResourceTitleLength, len(r.Title))
	}
}

func TestLessonResourceSetTypeDefaultsMime(t *testing.T) {
	tests := []struct {
		typ      ResourceType
		expected string
	}{
		{ResourcePDF, "application/pdf"},
		{ResourceDocument, "application/msword"},
		{ResourceImage, "image/*"},
		{ResourceVideo, "video/*"},
		{ResourceAudio, "audio/*"},
		{ResourceLink, ""},
		{ResourceExercise, ""},
	}
	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			var r LessonResource
			if err := r.SetType(tc.typ); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.MimeType != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, r.MimeType)
			}
		})
	}

	r := LessonResource{MimeType: "application/x-custom"}
	r.SetType(ResourcePDF)
	if r.MimeType != "application/x-custom" {
		t.Errorf("expected explicit MIME type to be kept, got %q", r.MimeType)
	}
}

func TestLessonResourceIsValid(t *testing.T) {
	r := LessonResource{ID: "r", Title: "Worksheet", Type: ResourceExercise, URL: "https://example.com/ws"}
	if !r.IsValid() {
		t.Fatalf("expected resource to be valid: %v", r.Validate())
	}

	r.URL = ""
	if r.IsValid() {
		t.Errorf("expected missing URL to be invalid")
	}
}

func TestLessonResourceHelpers(t *testing.T) {
	link := LessonResource{Type: ResourceLink}
	if link.IsDownloadable() {
		t.Errorf("expected links not to be downloadable")
	}
	if !link.IsLink() || !link.IsViewable() {
		t.Errorf("expected link predicates to hold")
	}

	doc := LessonResource{Type: ResourceDocument}
	if !doc.IsDownloadable() || doc.IsViewable() || !doc.IsDocument() {
		t.Errorf("unexpected predicates for document resource")
	}
}

func TestFormattedFileSize(t *testing.T) {
	tests := []struct {
		size     int64
		expected string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{MaxResourceFileSize, "1.0 GB"},
	}
	for _, tc := range tests {
		r := LessonResource{FileSizeBytes: tc.size}
		if got := r.FormattedFileSize(); got != tc.expected {
			t.Errorf("%d bytes: Expected %q, got %q", tc.size, tc.expected, got)
		}
	}
}
