package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
)

type stubQuizStore struct {
	mu       sync.Mutex
	quizzes  map[string]*models.Quiz
	attempts map[string]models.QuizAttempt
	saveErr  error
	saves    int
}

func newStubQuizStore(quizzes ...*models.Quiz) *stubQuizStore {
	s := &stubQuizStore{
		quizzes:  make(map[string]*models.Quiz),
		attempts: make(map[string]models.QuizAttempt),
	}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *stubQuizStore) GetByID(_ context.Context, id string) (*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, &apperr.NotFoundError{Message: "Quiz not found"}
	}
	return q, nil
}

func (s *stubQuizStore) CountAttempts(_ context.Context, userID, quizID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (s *stubQuizStore) SaveAttempt(_ context.Context, a *models.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *stubQuizStore) GetAttemptByID(_ context.Context, id string) (*models.QuizAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, &apperr.NotFoundError{Message: "Quiz attempt not found"}
	}
	out := a.Clone()
	return &out, nil
}

func (s *stubQuizStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *stubQuizStore) failSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

type recordingPublisher struct {
	mu        sync.Mutex
	msgs      []models.WSMessage
	submitted chan models.AttemptSubmittedEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{submitted: make(chan models.AttemptSubmittedEvent, 8)}
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, msg models.WSMessage) {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	if ev, ok := msg.Payload.(models.AttemptSubmittedEvent); ok {
		p.submitted <- ev
	}
}

func (p *recordingPublisher) count(msgType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

type listenerFunc func(ctx context.Context, quiz *models.Quiz, attempt models.QuizAttempt)

func (f listenerFunc) AttemptSubmitted(ctx context.Context, quiz *models.Quiz, attempt models.QuizAttempt) {
	f(ctx, quiz, attempt)
}

func noTicks(t *testing.T) TickSource {
	return func() (<-chan time.Time, func()) {
		t.Errorf("countdown started for an untimed quiz")
		return make(chan time.Time), func() {}
	}
}

func TestStartUntimedQuizHasNoCountdown(t *testing.T) {
	store := newStubQuizStore(fourQuestionQuiz(70))
	svc := NewAttemptService(store, nil, noTicks(t))

	snap, err := svc.Start(context.Background(), "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.Timed || snap.RemainingSeconds != 0 {
		t.Errorf("expected untimed snapshot, got %+v", snap)
	}
	if snap.Attempt.Status != models.AttemptInProgress || snap.Attempt.AttemptNumber != 1 {
		t.Errorf("unexpected attempt %+v", snap.Attempt)
	}
	if snap.Total != 4 || snap.Answered != 0 || len(snap.Attempt.Answers) != 4 {
		t.Errorf("expected 4 seeded answers, got %+v", snap)
	}
	for _, q := range snap.Quiz.Questions {
		if len(q.CorrectAnswers) != 0 {
			t.Errorf("snapshot leaks answers for %s", q.ID)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if store.saveCount() != 0 {
		t.Errorf("expected no implicit submit, got %d saves", store.saveCount())
	}
}

func TestStartReturnsLiveAttempt(t *testing.T) {
	svc := NewAttemptService(newStubQuizStore(fourQuestionQuiz(70)), nil, noTicks(t))
	ctx := context.Background()

	first, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.Attempt.ID != second.Attempt.ID {
		t.Errorf("Expected live attempt %s, got %s", first.Attempt.ID, second.Attempt.ID)
	}
}

func TestStartErrors(t *testing.T) {
	empty := &models.Quiz{ID: "empty", Title: "Empty", IsActive: true}
	inactive := fourQuestionQuiz(70)
	inactive.ID = "inactive"
	inactive.IsActive = false

	svc := NewAttemptService(newStubQuizStore(empty, inactive), nil, noTicks(t))

	_, err := svc.Start(context.Background(), "missing", "u")
	if !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	_, err = svc.Start(context.Background(), "empty", "u")
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	_, err = svc.Start(context.Background(), "inactive", "u")
	var conflict *apperr.StateConflict
	if !errors.As(err, &conflict) {
		t.Errorf("expected StateConflict, got %v", err)
	}
}

func TestStartWithCanceledContextRegistersNothing(t *testing.T) {
	svc := NewAttemptService(newStubQuizStore(fourQuestionQuiz(70)), nil, noTicks(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Start(ctx, "quiz-1", "user-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if svc.liveSession("user-1", "quiz-1") != nil {
		t.Errorf("expected no live attempt")
	}
}

func TestStartAfterMaxAttempts(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.MaxAttempts = 1
	store := newStubQuizStore(quiz)
	svc := NewAttemptService(store, nil, noTicks(t))
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Submit(ctx, snap.Attempt.ID, "user-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = svc.Start(ctx, "quiz-1", "user-1")
	var limit *apperr.AttemptLimitExceeded
	if !errors.As(err, &limit) {
		t.Fatalf("expected AttemptLimitExceeded, got %v", err)
	}
	if limit.MaxAttempts != 1 {
		t.Errorf("Expected max attempts 1, got %d", limit.MaxAttempts)
	}

	if _, err := svc.Start(ctx, "quiz-1", "user-2"); err != nil {
		t.Errorf("expected other users to be unaffected, got %v", err)
	}
}

func TestSubmitScoresAndIsIdempotent(t *testing.T) {
	store := newStubQuizStore(fourQuestionQuiz(70))
	pub := newRecordingPublisher()
	svc := NewAttemptService(store, pub, noTicks(t))
	ctx := context.Background()

	var notified int
	svc.OnSubmit(listenerFunc(func(_ context.Context, _ *models.Quiz, a models.QuizAttempt) {
		notified++
	}))

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := snap.Attempt.ID
	for qid, v := range map[string]string{"q1": "a", "q2": "a", "q3": "a", "q4": "b"} {
		if err := svc.RecordAnswer(ctx, id, "user-1", qid, v, nil); err != nil {
			t.Fatalf("RecordAnswer %s: %v", qid, err)
		}
	}

	first, err := svc.Submit(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Attempt.Score != 75 || !first.Attempt.Passed || first.Attempt.Status != models.AttemptSubmitted {
		t.Fatalf("unexpected result %+v", first.Attempt)
	}
	if first.Attempt.EndedAt == nil || first.Attempt.CorrectCount != 3 {
		t.Errorf("expected end time and 3 correct, got %+v", first.Attempt)
	}

	second, err := svc.Submit(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.Attempt.Score != first.Attempt.Score || !second.Attempt.EndedAt.Equal(*first.Attempt.EndedAt) {
		t.Errorf("expected original result, got %+v", second.Attempt)
	}
	if store.saveCount() != 1 {
		t.Errorf("Expected 1 save, got %d", store.saveCount())
	}
	if notified != 1 || pub.count("attempt_submitted") != 1 {
		t.Errorf("expected one announcement, got listener=%d events=%d", notified, pub.count("attempt_submitted"))
	}
}

func TestTimedAttemptAutoSubmitsOnce(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.TimeLimitMinutes = 1
	store := newStubQuizStore(quiz)
	pub := newRecordingPublisher()
	ticks := newManualTicks()
	svc := NewAttemptService(store, pub, ticks.source)
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !snap.Timed || snap.RemainingSeconds != 60 {
		t.Fatalf("expected 60s countdown, got %+v", snap)
	}
	if err := svc.RecordAnswer(ctx, snap.Attempt.ID, "user-1", "q1", "a", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	ticks.tick(t, 60)

	select {
	case ev := <-pub.submitted:
		if !ev.AutoSubmitted || ev.Score != 25 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("attempt was not submitted on expiry")
	}

	if !ticks.refused() {
		t.Errorf("expected countdown to stop after expiry")
	}
	if store.saveCount() != 1 {
		t.Errorf("Expected exactly 1 save, got %d", store.saveCount())
	}
	if got := pub.count("countdown_tick"); got != 60 {
		t.Errorf("Expected 60 countdown ticks, got %d", got)
	}

	final, err := svc.Snapshot(ctx, snap.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if final.Attempt.Status != models.AttemptSubmitted || !final.Attempt.AutoSubmitted {
		t.Errorf("unexpected final attempt %+v", final.Attempt)
	}

	if err := svc.RecordAnswer(ctx, snap.Attempt.ID, "user-1", "q2", "a", nil); err == nil {
		t.Errorf("expected answers after submission to be rejected")
	}
}

func TestSubmitRollsBackOnPersistenceFailure(t *testing.T) {
	store := newStubQuizStore(fourQuestionQuiz(70))
	svc := NewAttemptService(store, nil, noTicks(t))
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := snap.Attempt.ID

	store.failSaves(&apperr.PersistenceFailure{Message: "Failed to save quiz attempt", Err: errors.New("boom")})
	_, err = svc.Submit(ctx, id, "user-1")
	var pf *apperr.PersistenceFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected PersistenceFailure, got %v", err)
	}

	current, err := svc.Snapshot(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if current.Attempt.Status != models.AttemptInProgress || current.Attempt.EndedAt != nil {
		t.Fatalf("expected attempt to stay in progress, got %+v", current.Attempt)
	}
	if err := svc.RecordAnswer(ctx, id, "user-1", "q1", "a", nil); err != nil {
		t.Errorf("expected answers to be accepted after a failed submit: %v", err)
	}

	store.failSaves(nil)
	result, err := svc.Submit(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if result.Attempt.Status != models.AttemptSubmitted || result.Attempt.Score != 25 {
		t.Errorf("unexpected result %+v", result.Attempt)
	}
}

func TestRecordAnswerErrors(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.Questions = append(quiz.Questions, models.Question{
		ID: "m1", Text: "Pick both", Type: models.QuestionMatching, CorrectAnswers: []string{"A", "B"},
	})
	svc := NewAttemptService(newStubQuizStore(quiz), nil, noTicks(t))
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := snap.Attempt.ID

	tests := []struct {
		name     string
		attempt  string
		user     string
		question string
		value    string
		values   []string
		check    func(error) bool
	}{
		{"unknown question", id, "user-1", "nope", "a", nil, apperr.IsNotFound},
		{"set for single", id, "user-1", "q1", "", []string{"a"}, isValidation},
		{"string for matching", id, "user-1", "m1", "A", nil, isValidation},
		{"foreign user", id, "user-2", "q1", "a", nil, apperr.IsNotFound},
		{"unknown attempt", "nope", "user-1", "q1", "a", nil, apperr.IsNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.RecordAnswer(ctx, tc.attempt, tc.user, tc.question, tc.value, tc.values)
			if !tc.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}

	if err := svc.RecordAnswer(ctx, id, "user-1", "m1", "", []string{"B", "A"}); err != nil {
		t.Fatalf("RecordAnswer matching: %v", err)
	}
	if err := svc.RecordAnswer(ctx, id, "user-1", "q1", "a", nil); err != nil {
		t.Fatalf("RecordAnswer single: %v", err)
	}
	result, err := svc.Submit(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Attempt.CorrectCount != 2 {
		t.Errorf("Expected matching and q1 to be correct, got %d", result.Attempt.CorrectCount)
	}
}

func TestRequestSubmitNeedsConfirmation(t *testing.T) {
	store := newStubQuizStore(fourQuestionQuiz(70))
	svc := NewAttemptService(store, nil, noTicks(t))
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := snap.Attempt.ID
	if err := svc.RecordAnswer(ctx, id, "user-1", "q1", "a", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	check, err := svc.RequestSubmit(ctx, id, "user-1", false)
	if err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}
	if !check.RequiresConfirmation || check.Unanswered != 3 || check.Answered != 1 || check.Result != nil {
		t.Errorf("unexpected check %+v", check)
	}
	if store.saveCount() != 0 {
		t.Errorf("expected nothing to be submitted")
	}

	check, err = svc.RequestSubmit(ctx, id, "user-1", true)
	if err != nil {
		t.Fatalf("RequestSubmit confirmed: %v", err)
	}
	if check.RequiresConfirmation || check.Result == nil || check.Result.Attempt.Status != models.AttemptSubmitted {
		t.Errorf("expected confirmed submit, got %+v", check)
	}
}

func TestAbandonDropsAttempt(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.TimeLimitMinutes = 5
	store := newStubQuizStore(quiz)
	ticks := newManualTicks()
	svc := NewAttemptService(store, nil, ticks.source)
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Abandon(ctx, snap.Attempt.ID, "user-1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	ticks.waitReleased(t, 1)
	if store.saveCount() != 0 {
		t.Errorf("expected abandoned attempt not to be saved")
	}
	if _, err := svc.Snapshot(ctx, snap.Attempt.ID, "user-1"); !apperr.IsNotFound(err) {
		t.Errorf("expected abandoned attempt to be gone, got %v", err)
	}

	again, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if again.Attempt.AttemptNumber != 1 {
		t.Errorf("Expected abandoned attempt not to count, got number %d", again.Attempt.AttemptNumber)
	}
	svc.Close()
}

// abandonOnLastTick abandons the attempt from inside the final countdown
// tick, after the countdown has committed to expiring.
type abandonOnLastTick struct {
	svc       *AttemptService
	attemptID string
	done      chan error
}

func (p *abandonOnLastTick) Publish(ctx context.Context, userID string, msg models.WSMessage) {
	tick, ok := msg.Payload.(models.CountdownTick)
	if !ok || tick.RemainingSeconds != 0 {
		return
	}
	p.done <- p.svc.Abandon(ctx, p.attemptID, userID)
}

func TestAbandonOnFinalSecondDoesNotSubmit(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.TimeLimitMinutes = 1
	quiz.MaxAttempts = 1
	store := newStubQuizStore(quiz)
	ticks := newManualTicks()
	pub := &abandonOnLastTick{done: make(chan error, 1)}
	svc := NewAttemptService(store, pub, ticks.source)
	pub.svc = svc
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	pub.attemptID = snap.Attempt.ID

	ticks.tick(t, 60)
	select {
	case err := <-pub.done:
		if err != nil {
			t.Fatalf("Abandon: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("final tick was not published")
	}
	ticks.waitReleased(t, 1)

	if store.saveCount() != 0 {
		t.Errorf("Expected abandoned attempt not to be saved, got %d saves", store.saveCount())
	}
	again, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("expected a fresh attempt within the limit: %v", err)
	}
	if again.Attempt.AttemptNumber != 1 {
		t.Errorf("Expected attempt number 1, got %d", again.Attempt.AttemptNumber)
	}
	svc.Close()
}

func TestExpiredAttemptSubmitsAfterFailedAutoSubmit(t *testing.T) {
	quiz := fourQuestionQuiz(70)
	quiz.TimeLimitMinutes = 1
	store := newStubQuizStore(quiz)
	pub := newRecordingPublisher()
	ticks := newManualTicks()
	svc := NewAttemptService(store, pub, ticks.source)
	ctx := context.Background()

	snap, err := svc.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	id := snap.Attempt.ID
	if err := svc.RecordAnswer(ctx, id, "user-1", "q1", "a", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	store.failSaves(&apperr.PersistenceFailure{Message: "Failed to save quiz attempt", Err: errors.New("offline")})
	ticks.tick(t, 60)
	ticks.waitReleased(t, 1)

	current, err := svc.Snapshot(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if current.Attempt.Status != models.AttemptExpired || current.Attempt.EndedAt != nil {
		t.Fatalf("expected attempt to stay expired and unsaved, got %+v", current.Attempt)
	}
	var conflict *apperr.StateConflict
	if err := svc.RecordAnswer(ctx, id, "user-1", "q2", "a", nil); !errors.As(err, &conflict) {
		t.Errorf("expected answers on an expired attempt to conflict, got %v", err)
	}

	store.failSaves(nil)
	result, err := svc.Submit(ctx, id, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Attempt.Status != models.AttemptSubmitted || result.Attempt.Score != 25 || !result.Attempt.AutoSubmitted {
		t.Errorf("unexpected result %+v", result.Attempt)
	}
	if store.saveCount() != 2 {
		t.Errorf("Expected 2 save attempts, got %d", store.saveCount())
	}
	if got := pub.count("attempt_submitted"); got != 1 {
		t.Errorf("Expected 1 attempt_submitted event, got %d", got)
	}
}

func isValidation(err error) bool {
	var v *apperr.ValidationError
	return errors.As(err, &v)
}
