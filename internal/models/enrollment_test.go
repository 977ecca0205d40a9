package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"learnizone-backend/internal/apperr"
)

func validationFields(err error) map[string]string {
	var v *apperr.ValidationError
	if errors.As(err, &v) {
		return v.Fields
	}
	return nil
}

func TestApplyCourseProgress(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := NewEnrollment("u", "c", now.Add(-24*time.Hour))

	if done := e.ApplyCourseProgress(50, 2, 4, now); done {
		t.Errorf("expected 50%% not to complete the enrollment")
	}
	if e.Status != EnrollmentActive || e.CompletionDate != nil {
		t.Errorf("unexpected state after partial progress: %+v", e)
	}

	if done := e.ApplyCourseProgress(100, 4, 4, now); !done {
		t.Errorf("expected 100%% to complete the enrollment")
	}
	if e.Status != EnrollmentCompleted || e.CompletionDate == nil || !e.CompletionDate.Equal(now) {
		t.Errorf("unexpected state after completion: %+v", e)
	}

	if done := e.ApplyCourseProgress(100, 4, 4, now.Add(time.Hour)); done {
		t.Errorf("expected repeated completion not to be reported again")
	}
	if !e.CompletionDate.Equal(now) {
		t.Errorf("expected completion date to be kept")
	}
}

func TestApplyCourseProgressClamps(t *testing.T) {
	now := time.Now()
	e := NewEnrollment("u", "c", now)

	e.ApplyCourseProgress(-5, 0, 3, now)
	if e.Progress != 0 {
		t.Errorf("Expected 0, got %d", e.Progress)
	}
	e.ApplyCourseProgress(140, 3, 3, now)
	if e.Progress != 100 {
		t.Errorf("Expected 100, got %d", e.Progress)
	}
}

func TestRecordQuizScore(t *testing.T) {
	e := NewEnrollment("u", "c", time.Now())
	e.RecordQuizScore(80)
	e.RecordQuizScore(50)

	if e.QuizzesTaken != 2 {
		t.Errorf("Expected 2 quizzes, got %d", e.QuizzesTaken)
	}
	if math.Abs(e.AverageQuizScore-65) > 1e-9 {
		t.Errorf("Expected average 65, got %v", e.AverageQuizScore)
	}
}

func TestComputeEnrollmentStats(t *testing.T) {
	if got := ComputeEnrollmentStats(nil); got.Total != 0 || got.CompletionRate != 0 {
		t.Errorf("expected zero stats, got %+v", got)
	}

	stats := ComputeEnrollmentStats([]Enrollment{
		{Status: EnrollmentActive, Progress: 20},
		{Status: EnrollmentCompleted, Progress: 100},
		{Status: EnrollmentSuspended, Progress: 0},
		{Status: EnrollmentCompleted, Progress: 100},
	})
	if stats.Total != 4 || stats.Active != 1 || stats.Completed != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.AverageProgress != 55 || stats.CompletionRate != 50 {
		t.Errorf("unexpected ratios: %+v", stats)
	}
}

func TestParseNotificationType(t *testing.T) {
	if got := ParseNotificationType("quiz_due"); got != NotifyQuizDue {
		t.Errorf("Expected %q, got %q", NotifyQuizDue, got)
	}
	if got := ParseNotificationType("carrier_pigeon"); got != NotifyGeneral {
		t.Errorf("Expected unknown type to map to general, got %q", got)
	}
	if PriorityHigh.String() != "high" || NotificationPriority(9).String() != "unknown" {
		t.Errorf("unexpected priority names")
	}
}
