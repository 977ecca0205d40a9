package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type QuizRepo struct {
	docs
}

func NewQuizRepo(store docstore.Store) *QuizRepo {
	return &QuizRepo{docs{store}}
}

func (r *QuizRepo) Create(ctx context.Context, q *models.Quiz) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	return r.put(ctx, quizzesCollection, q.ID, q)
}

func (r *QuizRepo) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	var q models.Quiz
	if err := r.getInto(ctx, quizzesCollection, id, "Quiz not found", &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuizRepo) ListByLesson(ctx context.Context, lessonID string) ([]models.Quiz, error) {
	return queryAll[models.Quiz](ctx, r.docs, quizzesCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("lesson_id", docstore.OpEq, lessonID)},
		OrderBy: "created_at",
		Desc:    true,
	})
}

// Quiz Attempts

// CountAttempts returns how many attempts of the quiz the user has submitted.
func (r *QuizRepo) CountAttempts(ctx context.Context, userID, quizID string) (int, error) {
	found, err := r.query(ctx, quizAttemptsCollection, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("user_id", docstore.OpEq, userID),
			docstore.Where("quiz_id", docstore.OpEq, quizID),
		},
	})
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

// SaveAttempt stores the attempt and its answers as one document.
func (r *QuizRepo) SaveAttempt(ctx context.Context, a *models.QuizAttempt) error {
	return r.put(ctx, quizAttemptsCollection, a.ID, a)
}

func (r *QuizRepo) GetAttemptByID(ctx context.Context, id string) (*models.QuizAttempt, error) {
	var a models.QuizAttempt
	if err := r.getInto(ctx, quizAttemptsCollection, id, "Quiz attempt not found", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *QuizRepo) ListAttemptsByUser(ctx context.Context, userID string, limit int) ([]models.QuizAttempt, error) {
	return queryAll[models.QuizAttempt](ctx, r.docs, quizAttemptsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("user_id", docstore.OpEq, userID)},
		OrderBy: "started_at",
		Desc:    true,
		Limit:   limit,
	})
}
