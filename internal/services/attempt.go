package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
)

const autoSubmitTimeout = 30 * time.Second

// QuizStore is the persistence used by AttemptService.
type QuizStore interface {
	GetByID(ctx context.Context, id string) (*models.Quiz, error)
	CountAttempts(ctx context.Context, userID, quizID string) (int, error)
	SaveAttempt(ctx context.Context, a *models.QuizAttempt) error
	GetAttemptByID(ctx context.Context, id string) (*models.QuizAttempt, error)
}

// SubmitListener is told about every attempt that reaches SUBMITTED.
type SubmitListener interface {
	AttemptSubmitted(ctx context.Context, quiz *models.Quiz, attempt models.QuizAttempt)
}

// AttemptSnapshot is an immutable view of an attempt. The quiz carries no
// reference answers.
type AttemptSnapshot struct {
	Attempt          models.QuizAttempt `json:"attempt"`
	Quiz             models.Quiz        `json:"quiz"`
	Answered         int                `json:"answered"`
	Total            int                `json:"total"`
	Timed            bool               `json:"timed"`
	RemainingSeconds int                `json:"remaining_seconds"`
}

// SubmitCheck is the answer to a submit request. When RequiresConfirmation
// is set nothing was submitted.
type SubmitCheck struct {
	Answered             int              `json:"answered"`
	Total                int              `json:"total"`
	Unanswered           int              `json:"unanswered"`
	RequiresConfirmation bool             `json:"requires_confirmation"`
	Result               *AttemptSnapshot `json:"result,omitempty"`
}

// attemptSession owns one live attempt. mu serializes answers, the countdown
// expiry and submission; it is held across the persistence call so that a
// second submit waits for the first and then sees its outcome.
type attemptSession struct {
	userID  string
	quizID  string
	quiz    *models.Quiz
	mu      sync.Mutex
	attempt models.QuizAttempt
	timer   *countdown

	// abandoned is set by Abandon. An expiry already past the countdown's
	// stop check must not submit the attempt after that.
	abandoned bool
}

// AttemptService runs the quiz attempt state machine:
// UNSTARTED -> IN_PROGRESS -> SUBMITTED, or IN_PROGRESS -> EXPIRED -> SUBMITTED
// when the countdown runs out.
//
// Lock order is session before service.
type AttemptService struct {
	quizzes   QuizStore
	publisher Publisher
	ticks     TickSource
	now       func() time.Time

	mu        sync.Mutex
	sessions  map[string]*attemptSession
	live      map[string]string
	listeners []SubmitListener
}

func NewAttemptService(quizzes QuizStore, publisher Publisher, ticks TickSource) *AttemptService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if ticks == nil {
		ticks = SecondTicker
	}
	return &AttemptService{
		quizzes:   quizzes,
		publisher: publisher,
		ticks:     ticks,
		now:       time.Now,
		sessions:  make(map[string]*attemptSession),
		live:      make(map[string]string),
	}
}

func (s *AttemptService) OnSubmit(l SubmitListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func liveKey(userID, quizID string) string {
	return userID + "|" + quizID
}

// Start begins a new attempt, or returns the user's live attempt on the quiz
// if there is one.
func (s *AttemptService) Start(ctx context.Context, quizID, userID string) (*AttemptSnapshot, error) {
	if sess := s.liveSession(userID, quizID); sess != nil {
		return sess.snapshot(), nil
	}

	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}
	if !quiz.IsActive {
		return nil, &apperr.StateConflict{Message: "This quiz is not currently available"}
	}

	prior, err := s.quizzes.CountAttempts(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.MaxAttempts > 0 && prior >= quiz.MaxAttempts {
		return nil, &apperr.AttemptLimitExceeded{
			Message:     fmt.Sprintf("You have used all %d attempts for this quiz", quiz.MaxAttempts),
			MaxAttempts: quiz.MaxAttempts,
		}
	}

	// The caller went away while the quiz was loading.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	number := prior + 1
	attempt := models.QuizAttempt{
		ID:               models.AttemptID(userID, quizID, number),
		QuizID:           quizID,
		UserID:           userID,
		AttemptNumber:    number,
		Status:           models.AttemptInProgress,
		StartedAt:        s.now().UTC(),
		Answers:          make([]models.QuestionAnswer, 0, len(quiz.Questions)),
		TimeLimitMinutes: quiz.TimeLimitMinutes,
	}
	for _, q := range quiz.Questions {
		attempt.Answers = append(attempt.Answers, models.QuestionAnswer{QuestionID: q.ID, AttemptID: attempt.ID})
	}

	sess := &attemptSession{userID: userID, quizID: quizID, quiz: quiz, attempt: attempt}
	sess.mu.Lock()

	s.mu.Lock()
	if id, ok := s.live[liveKey(userID, quizID)]; ok {
		existing := s.sessions[id]
		s.mu.Unlock()
		sess.mu.Unlock()
		return existing.snapshot(), nil
	}
	s.sessions[attempt.ID] = sess
	s.live[liveKey(userID, quizID)] = attempt.ID
	s.mu.Unlock()

	if quiz.TimeLimitMinutes > 0 {
		attemptID := attempt.ID
		sess.timer = startCountdown(quiz.TimeLimitMinutes*60, s.ticks,
			func(remaining int) {
				s.publisher.Publish(context.Background(), userID, models.WSMessage{
					Type:    "countdown_tick",
					Payload: models.CountdownTick{AttemptID: attemptID, RemainingSeconds: remaining},
				})
			},
			func() { s.expire(sess) },
		)
	}
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	log.Printf("Quiz attempt %s started (limit %d min)", attempt.ID, quiz.TimeLimitMinutes)
	return snap, nil
}

// RecordAnswer replaces the answer to one question. Multi-valued questions
// take values, every other type takes value.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, userID, questionID, value string, values []string) error {
	sess, err := s.session(attemptID, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			if _, perr := s.persisted(ctx, attemptID, userID); perr == nil {
				return &apperr.StateConflict{Message: "This attempt has already been submitted"}
			}
		}
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.attempt.Status != models.AttemptInProgress {
		return &apperr.StateConflict{Message: "This attempt is no longer accepting answers"}
	}
	q, ok := sess.quiz.Question(questionID)
	if !ok {
		return &apperr.NotFoundError{Message: "Question not found in this quiz"}
	}

	if q.Type.MultiValued() {
		if value != "" {
			return apperr.Invalid("values", "This question takes a set of answers")
		}
	} else if len(values) > 0 {
		return apperr.Invalid("value", "This question takes a single answer")
	}

	for i := range sess.attempt.Answers {
		a := &sess.attempt.Answers[i]
		if a.QuestionID != questionID {
			continue
		}
		if q.Type.MultiValued() {
			a.Value = ""
			a.Values = append([]string(nil), values...)
		} else {
			a.Value = value
			a.Values = nil
		}
		return nil
	}
	return &apperr.NotFoundError{Message: "Question not found in this quiz"}
}

// RequestSubmit submits the attempt when every question is answered or the
// learner confirmed; otherwise it reports how many questions are open.
func (s *AttemptService) RequestSubmit(ctx context.Context, attemptID, userID string, confirmed bool) (*SubmitCheck, error) {
	sess, err := s.session(attemptID, userID)
	if apperr.IsNotFound(err) {
		snap, perr := s.persisted(ctx, attemptID, userID)
		if perr != nil {
			return nil, perr
		}
		return checkFor(snap, false), nil
	}
	if err != nil {
		return nil, err
	}

	current := sess.snapshot()
	if current.Attempt.Status == models.AttemptSubmitted {
		return checkFor(current, false), nil
	}
	if current.Answered < current.Total && !confirmed {
		return checkFor(current, true), nil
	}

	snap, err := s.finishAndAnnounce(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	return checkFor(snap, false), nil
}

func checkFor(snap *AttemptSnapshot, needsConfirmation bool) *SubmitCheck {
	check := &SubmitCheck{
		Answered:             snap.Answered,
		Total:                snap.Total,
		Unanswered:           snap.Total - snap.Answered,
		RequiresConfirmation: needsConfirmation,
	}
	if !needsConfirmation {
		check.Result = snap
	}
	return check
}

// Submit grades and persists the attempt. Calling it again returns the
// original result.
func (s *AttemptService) Submit(ctx context.Context, attemptID, userID string) (*AttemptSnapshot, error) {
	sess, err := s.session(attemptID, userID)
	if apperr.IsNotFound(err) {
		return s.persisted(ctx, attemptID, userID)
	}
	if err != nil {
		return nil, err
	}
	return s.finishAndAnnounce(ctx, sess, false)
}

// Abandon stops the countdown and forgets the attempt. Nothing is persisted
// and the attempt does not count against the quiz's limit.
func (s *AttemptService) Abandon(ctx context.Context, attemptID, userID string) error {
	sess, err := s.session(attemptID, userID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.timer != nil {
		sess.timer.stop()
	}
	submitted := sess.attempt.Status == models.AttemptSubmitted
	if !submitted {
		sess.abandoned = true
	}
	sess.mu.Unlock()
	if submitted {
		return &apperr.StateConflict{Message: "This attempt has already been submitted"}
	}

	s.drop(sess, attemptID)
	log.Printf("Quiz attempt %s abandoned", attemptID)
	return nil
}

// Snapshot returns the current state of a live or persisted attempt.
func (s *AttemptService) Snapshot(ctx context.Context, attemptID, userID string) (*AttemptSnapshot, error) {
	sess, err := s.session(attemptID, userID)
	if apperr.IsNotFound(err) {
		return s.persisted(ctx, attemptID, userID)
	}
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

// Close stops every running countdown. Live attempts are not submitted.
func (s *AttemptService) Close() {
	s.mu.Lock()
	sessions := make([]*attemptSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.timer != nil {
			sess.timer.stop()
		}
		sess.mu.Unlock()
	}
}

func (s *AttemptService) expire(sess *attemptSession) {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	if _, err := s.finishAndAnnounce(ctx, sess, true); err != nil {
		log.Printf("Quiz attempt auto-submit failed: %v", err)
	}
}

func (s *AttemptService) finishAndAnnounce(ctx context.Context, sess *attemptSession, expired bool) (*AttemptSnapshot, error) {
	snap, fresh, err := s.finish(ctx, sess, expired)
	if err != nil || !fresh {
		return snap, err
	}

	a := snap.Attempt
	s.publisher.Publish(ctx, a.UserID, models.WSMessage{
		Type: "attempt_submitted",
		Payload: models.AttemptSubmittedEvent{
			AttemptID:     a.ID,
			Score:         a.Score,
			Passed:        a.Passed,
			AutoSubmitted: a.AutoSubmitted,
		},
	})

	s.mu.Lock()
	listeners := append([]SubmitListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.AttemptSubmitted(ctx, sess.quiz, a)
	}
	return snap, nil
}

// finish moves the attempt to SUBMITTED. fresh reports whether this call did
// the transition. On a persistence failure answers are kept and a manual
// submit stays possible; an attempt whose time ran out stays EXPIRED.
func (s *AttemptService) finish(ctx context.Context, sess *attemptSession, expired bool) (snap *AttemptSnapshot, fresh bool, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.attempt.Status == models.AttemptSubmitted {
		return sess.snapshotLocked(), false, nil
	}
	if sess.abandoned || !s.tracked(sess) {
		if expired {
			return nil, false, nil
		}
		return nil, false, &apperr.NotFoundError{Message: "Quiz attempt not found"}
	}

	switch sess.attempt.Status {
	case models.AttemptInProgress:
		if expired {
			sess.attempt.Status = models.AttemptExpired
		}
	case models.AttemptExpired:
		if expired {
			return nil, false, nil
		}
	default:
		return nil, false, &apperr.StateConflict{Message: "This attempt has not started"}
	}

	grade := GradeAttempt(sess.quiz, sess.attempt.Answers)
	final := sess.attempt.Clone()
	ended := s.now().UTC()
	final.Status = models.AttemptSubmitted
	final.EndedAt = &ended
	final.Score = grade.Score
	final.CorrectCount = grade.Correct
	final.Passed = grade.Passed
	final.AutoSubmitted = sess.attempt.Status == models.AttemptExpired

	if err := s.quizzes.SaveAttempt(ctx, &final); err != nil {
		log.Printf("Quiz attempt %s: submission not saved: %v", final.ID, err)
		return nil, false, err
	}

	sess.attempt = final
	if sess.timer != nil {
		sess.timer.stop()
	}
	s.drop(sess, final.ID)

	log.Printf("Quiz attempt %s submitted: score %d, passed %v, auto %v", final.ID, final.Score, final.Passed, final.AutoSubmitted)
	return sess.snapshotLocked(), true, nil
}

func (s *AttemptService) tracked(sess *attemptSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sess.attempt.ID] == sess
}

func (s *AttemptService) drop(sess *attemptSession, attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[attemptID] == sess {
		delete(s.sessions, attemptID)
	}
	key := liveKey(sess.userID, sess.quizID)
	if s.live[key] == attemptID {
		delete(s.live, key)
	}
}

func (s *AttemptService) session(attemptID, userID string) (*attemptSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[attemptID]
	s.mu.Unlock()
	if !ok || sess.userID != userID {
		return nil, &apperr.NotFoundError{Message: "Quiz attempt not found"}
	}
	return sess, nil
}

func (s *AttemptService) liveSession(userID, quizID string) *attemptSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.live[liveKey(userID, quizID)]
	if !ok {
		return nil
	}
	return s.sessions[id]
}

func (s *AttemptService) persisted(ctx context.Context, attemptID, userID string) (*AttemptSnapshot, error) {
	attempt, err := s.quizzes.GetAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, &apperr.NotFoundError{Message: "Quiz attempt not found"}
	}
	quiz, err := s.quizzes.GetByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return buildSnapshot(quiz, *attempt, nil), nil
}

func (sess *attemptSession) snapshot() *AttemptSnapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked()
}

func (sess *attemptSession) snapshotLocked() *AttemptSnapshot {
	return buildSnapshot(sess.quiz, sess.attempt.Clone(), sess.timer)
}

func buildSnapshot(quiz *models.Quiz, attempt models.QuizAttempt, timer *countdown) *AttemptSnapshot {
	snap := &AttemptSnapshot{
		Attempt: attempt,
		Quiz:    quiz.Public(),
		Total:   len(quiz.Questions),
		Timed:   quiz.TimeLimitMinutes > 0,
	}
	for _, a := range attempt.Answers {
		if q, ok := quiz.Question(a.QuestionID); ok && a.Answered(q.Type) {
			snap.Answered++
		}
	}
	if timer != nil && attempt.Status == models.AttemptInProgress {
		snap.RemainingSeconds = timer.Remaining()
	}
	return snap
}
