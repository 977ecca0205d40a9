package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

// flakyStore wraps a Memory store and fails pings or writes on demand.
type flakyStore struct {
	*docstore.Memory
	offline   bool
	failWrite bool
}

func (s *flakyStore) Ping(ctx context.Context) error {
	if s.offline {
		return errors.New("dial tcp: connection refused")
	}
	return s.Memory.Ping(ctx)
}

func (s *flakyStore) Set(ctx context.Context, collection, id string, fields docstore.Document) error {
	if s.failWrite {
		return errors.New("write timeout")
	}
	return s.Memory.Set(ctx, collection, id, fields)
}

func TestRepositoryReportsNetworkUnavailable(t *testing.T) {
	store := &flakyStore{Memory: docstore.NewMemory(), offline: true}
	repo := NewQuizRepo(store)

	_, err := repo.GetByID(context.Background(), "quiz-1")
	var nu *apperr.NetworkUnavailable
	if !errors.As(err, &nu) {
		t.Fatalf("expected NetworkUnavailable, got %v", err)
	}
	if nu.Message != "No internet connection available" {
		t.Errorf("unexpected message %q", nu.Message)
	}
}

func TestRepositoryWrapsWriteFailures(t *testing.T) {
	store := &flakyStore{Memory: docstore.NewMemory(), failWrite: true}
	repo := NewQuizRepo(store)

	err := repo.SaveAttempt(context.Background(), &models.QuizAttempt{ID: "a"})
	var pf *apperr.PersistenceFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected PersistenceFailure, got %v", err)
	}
}

func TestRepositoryNotFound(t *testing.T) {
	repo := NewLessonRepo(docstore.NewMemory())
	if _, err := repo.GetByID(context.Background(), "missing"); !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUserRepoCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(docstore.NewMemory())

	u := &models.User{Email: " Ada@Example.com ", FullName: "Ada", PasswordHash: "hash"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || !u.IsActive {
		t.Errorf("expected id and active flag to be set: %+v", u)
	}

	got, err := repo.GetByEmail(ctx, "ada@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}

	var conflict *apperr.ConflictError
	if err := repo.Create(ctx, &models.User{Email: "ADA@example.com"}); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError for duplicate email, got %v", err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := repo.UpdateLastLogin(ctx, u.ID, at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	got, _ = repo.GetByID(ctx, u.ID)
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Errorf("Expected last login %v, got %v", at, got.LastLoginAt)
	}
}

func TestUserRepoPreferences(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(docstore.NewMemory())

	settings, err := repo.GetSettings(ctx, "u1")
	if err != nil || len(settings.Notifications) != 0 {
		t.Fatalf("expected empty default settings, got %+v %v", settings, err)
	}

	if _, err := repo.UpdateNotificationPreferences(ctx, "u1", map[string]bool{"quiz_alerts_enabled": false}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := repo.UpdateNotificationPreferences(ctx, "u1", map[string]bool{"general_enabled": false}); err != nil {
		t.Fatalf("update: %v", err)
	}

	settings, _ = repo.GetSettings(ctx, "u1")
	if v, ok := settings.Notifications["quiz_alerts_enabled"]; !ok || v {
		t.Errorf("expected earlier preference to be kept, got %v", settings.Notifications)
	}
	if settings.Notifications["general_enabled"] {
		t.Errorf("expected general_enabled=false")
	}
}

func TestLessonRepoListByCourse(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	repo := NewLessonRepo(store)

	for i, title := range []string{"Third", "First", "Second"} {
		l := models.NewLesson("l"+title, "course-1")
		l.Title = title
		l.OrderIndex = []int{3, 1, 2}[i]
		if err := repo.Save(ctx, l); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	other := models.NewLesson("x", "course-2")
	other.Title = "Elsewhere"
	repo.Save(ctx, other)

	// Written around the model so the repository sees an invalid document.
	store.Set(ctx, lessonsCollection, "bad", docstore.Document{"id": "bad", "course_id": "course-1", "title": "<b>", "order_index": 0})

	lessons, err := repo.ListByCourse(ctx, "course-1")
	if err != nil {
		t.Fatalf("ListByCourse: %v", err)
	}
	if len(lessons) != 3 {
		t.Fatalf("Expected 3 lessons, got %d", len(lessons))
	}
	for i, want := range []string{"First", "Second", "Third"} {
		if lessons[i].Title != want {
			t.Errorf("position %d: Expected %q, got %q", i, want, lessons[i].Title)
		}
	}

	bad := models.NewLesson("bad2", "course-1")
	bad.Title = "a&b"
	if err := repo.Save(ctx, bad); !isValidation(err) {
		t.Errorf("expected ValidationError on save, got %v", err)
	}
}

func TestProgressRepoUpsertIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepo(docstore.NewMemory())

	p, _ := models.NewLessonProgress("e1", "l1")
	p.SetProgress(30)
	if err := repo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	p2, _ := models.NewLessonProgress("e1", "l1")
	p2.MarkAsCompleted()
	if err := repo.Upsert(ctx, p2); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	other, _ := models.NewLessonProgress("e2", "l1")
	repo.Upsert(ctx, other)

	byLesson, err := repo.ByLesson(ctx, "e1")
	if err != nil {
		t.Fatalf("ByLesson: %v", err)
	}
	if len(byLesson) != 1 || byLesson["l1"].Progress != 100 || !byLesson["l1"].Completed {
		t.Errorf("unexpected progress map: %+v", byLesson)
	}

	if err := repo.DeleteForEnrollment(ctx, "e1"); err != nil {
		t.Fatalf("DeleteForEnrollment: %v", err)
	}
	if _, err := repo.Get(ctx, "e1", "l1"); !apperr.IsNotFound(err) {
		t.Errorf("expected progress to be deleted, got %v", err)
	}
	if _, err := repo.Get(ctx, "e2", "l1"); err != nil {
		t.Errorf("expected other enrollment to be untouched, got %v", err)
	}
}

func TestProgressRepoWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := NewProgressRepo(docstore.NewMemory())

	updates, err := repo.Watch(ctx, "e1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	select {
	case first := <-updates:
		if len(first) != 0 {
			t.Fatalf("expected empty initial snapshot, got %v", first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	p, _ := models.NewLessonProgress("e1", "l1")
	p.SetProgress(50)
	if err := repo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if got, ok := snap["l1"]; ok && got.Progress == 50 {
				return
			}
		case <-deadline:
			t.Fatal("progress write was not observed")
		}
	}
}

func TestQuizRepoCountAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewQuizRepo(docstore.NewMemory())

	for n := 1; n <= 2; n++ {
		a := &models.QuizAttempt{ID: models.AttemptID("u1", "q1", n), UserID: "u1", QuizID: "q1", AttemptNumber: n}
		if err := repo.SaveAttempt(ctx, a); err != nil {
			t.Fatalf("SaveAttempt: %v", err)
		}
	}
	repo.SaveAttempt(ctx, &models.QuizAttempt{ID: models.AttemptID("u2", "q1", 1), UserID: "u2", QuizID: "q1"})
	repo.SaveAttempt(ctx, &models.QuizAttempt{ID: models.AttemptID("u1", "q2", 1), UserID: "u1", QuizID: "q2"})

	count, err := repo.CountAttempts(ctx, "u1", "q1")
	if err != nil {
		t.Fatalf("CountAttempts: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 attempts, got %d", count)
	}
}

func TestNotificationRepoOwnership(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo(docstore.NewMemory())

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, title := range []string{"older", "newer"} {
		n := &models.Notification{UserID: "u1", Type: models.NotifyGeneral, Title: title, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, err := repo.ListByUser(ctx, "u1", 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListByUser: %v %d", err, len(list))
	}
	if list[0].Title != "newer" {
		t.Errorf("Expected newest first, got %q", list[0].Title)
	}

	if err := repo.MarkRead(ctx, list[0].ID, "intruder"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError for foreign notification, got %v", err)
	}
	if err := repo.MarkRead(ctx, list[0].ID, "u1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, _ := repo.CountUnread(ctx, "u1")
	if unread != 1 {
		t.Errorf("Expected 1 unread, got %d", unread)
	}

	if err := repo.Delete(ctx, list[1].ID, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = repo.ListByUser(ctx, "u1", 10)
	if len(list) != 1 {
		t.Errorf("Expected 1 notification after delete, got %d", len(list))
	}
}

func TestJobRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepo(docstore.NewMemory())

	job := &models.Job{UserID: "u1", Type: "quiz-generation", ReferenceID: "lesson-1"}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	repo.UpdateError(ctx, job.ID, "boom", 1)
	repo.SetResult(ctx, job.ID, "quiz-9")
	if err := repo.UpdateStatus(ctx, job.ID, "completed"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "completed" || got.CompletedAt == nil || got.ResultID != "quiz-9" || got.RetryCount != 1 {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Errorf("expected error message to be stored")
	}

	if err := repo.UpdateStatus(ctx, "missing", "failed"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func isValidation(err error) bool {
	var v *apperr.ValidationError
	return errors.As(err, &v)
}
