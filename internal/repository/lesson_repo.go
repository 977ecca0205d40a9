package repository

import (
	"context"
	"log"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type LessonRepo struct {
	docs
}

func NewLessonRepo(store docstore.Store) *LessonRepo {
	return &LessonRepo{docs{store}}
}

func (r *LessonRepo) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	doc, err := r.get(ctx, lessonsCollection, id, "Lesson not found")
	if err != nil {
		return nil, err
	}
	lesson, err := models.LessonFromMap(doc)
	if err != nil {
		return nil, apperr.Persistence("Failed to read lesson", err)
	}
	return lesson, nil
}

// ListByCourse returns the valid lessons of a course ordered by OrderIndex.
// Invalid documents are logged and skipped.
func (r *LessonRepo) ListByCourse(ctx context.Context, courseID string) ([]*models.Lesson, error) {
	found, err := r.query(ctx, lessonsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("course_id", docstore.OpEq, courseID)},
		OrderBy: "order_index",
	})
	if err != nil {
		return nil, err
	}

	lessons := make([]*models.Lesson, 0, len(found))
	for _, doc := range found {
		lesson, err := models.LessonFromMap(doc)
		if err != nil {
			log.Printf("repository: skipping unreadable lesson in course %s: %v", courseID, err)
			continue
		}
		if !lesson.IsValid() {
			log.Printf("repository: skipping invalid lesson %s: %v", lesson.ID, lesson.Validate())
			continue
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

func (r *LessonRepo) Save(ctx context.Context, lesson *models.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	doc, err := lesson.ToMap()
	if err != nil {
		return apperr.Persistence("Failed to save lesson", err)
	}
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.store.Set(ctx, lessonsCollection, lesson.ID, doc); err != nil {
		return apperr.Persistence("Failed to save lesson", err)
	}
	return nil
}
