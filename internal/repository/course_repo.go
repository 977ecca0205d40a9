package repository

import (
	"context"

	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type CourseRepo struct {
	docs
}

func NewCourseRepo(store docstore.Store) *CourseRepo {
	return &CourseRepo{docs{store}}
}

func (r *CourseRepo) GetByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.getInto(ctx, coursesCollection, id, "Course not found", &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepo) ListPublished(ctx context.Context) ([]models.Course, error) {
	return queryAll[models.Course](ctx, r.docs, coursesCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("is_published", docstore.OpEq, true)},
		OrderBy: "title",
	})
}

func (r *CourseRepo) Save(ctx context.Context, course *models.Course) error {
	return r.put(ctx, coursesCollection, course.ID, course)
}
