package repository

import (
	"context"

	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type EnrollmentRepo struct {
	docs
}

func NewEnrollmentRepo(store docstore.Store) *EnrollmentRepo {
	return &EnrollmentRepo{docs{store}}
}

func (r *EnrollmentRepo) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := r.getInto(ctx, enrollmentsCollection, id, "Enrollment not found", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Find returns the enrollment of a user in a course, NotFoundError if none.
func (r *EnrollmentRepo) Find(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	return r.GetByID(ctx, models.EnrollmentID(userID, courseID))
}

func (r *EnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	return queryAll[models.Enrollment](ctx, r.docs, enrollmentsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("user_id", docstore.OpEq, userID)},
		OrderBy: "enrolled_at",
		Desc:    true,
	})
}

func (r *EnrollmentRepo) ListActive(ctx context.Context) ([]models.Enrollment, error) {
	return queryAll[models.Enrollment](ctx, r.docs, enrollmentsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("status", docstore.OpEq, string(models.EnrollmentActive))},
	})
}

func (r *EnrollmentRepo) Save(ctx context.Context, e *models.Enrollment) error {
	return r.put(ctx, enrollmentsCollection, e.ID, e)
}

func (r *EnrollmentRepo) Delete(ctx context.Context, id string) error {
	return r.remove(ctx, enrollmentsCollection, id)
}
