package repository

import (
	"context"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type ProgressRepo struct {
	docs
}

func NewProgressRepo(store docstore.Store) *ProgressRepo {
	return &ProgressRepo{docs{store}}
}

func (r *ProgressRepo) Get(ctx context.Context, enrollmentID, lessonID string) (*models.LessonProgress, error) {
	doc, err := r.get(ctx, lessonProgressCollection, models.LessonProgressID(enrollmentID, lessonID), "Lesson progress not found")
	if err != nil {
		return nil, err
	}
	p, err := models.LessonProgressFromMap(doc)
	if err != nil {
		return nil, apperr.Persistence("Failed to read lesson progress", err)
	}
	return p, nil
}

// Upsert writes the single record kept per (enrollment, lesson); the last
// write wins.
func (r *ProgressRepo) Upsert(ctx context.Context, p *models.LessonProgress) error {
	p.ID = models.LessonProgressID(p.EnrollmentID, p.LessonID)
	doc, err := p.ToMap()
	if err != nil {
		return apperr.Persistence("Failed to save lesson progress", err)
	}
	if err := r.ready(ctx); err != nil {
		return err
	}
	if err := r.store.Set(ctx, lessonProgressCollection, p.ID, doc); err != nil {
		return apperr.Persistence("Failed to save lesson progress", err)
	}
	return nil
}

// ByLesson returns the enrollment's progress records keyed by lesson id.
func (r *ProgressRepo) ByLesson(ctx context.Context, enrollmentID string) (map[string]*models.LessonProgress, error) {
	found, err := r.query(ctx, lessonProgressCollection, progressQuery(enrollmentID))
	if err != nil {
		return nil, err
	}
	return progressMap(found)
}

// Watch streams the enrollment's progress map, first as it is now and then
// after every progress write. The channel closes when ctx is done.
func (r *ProgressRepo) Watch(ctx context.Context, enrollmentID string) (<-chan map[string]*models.LessonProgress, error) {
	if err := r.ready(ctx); err != nil {
		return nil, err
	}
	snapshots, err := r.store.Observe(ctx, lessonProgressCollection, progressQuery(enrollmentID))
	if err != nil {
		return nil, apperr.Persistence("Failed to watch lesson progress", err)
	}

	out := make(chan map[string]*models.LessonProgress)
	go func() {
		defer close(out)
		for snap := range snapshots {
			if snap.Err != nil {
				continue
			}
			byLesson, err := progressMap(snap.Documents)
			if err != nil {
				continue
			}
			select {
			case out <- byLesson:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *ProgressRepo) DeleteForEnrollment(ctx context.Context, enrollmentID string) error {
	found, err := r.query(ctx, lessonProgressCollection, progressQuery(enrollmentID))
	if err != nil {
		return err
	}
	for _, doc := range found {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := r.remove(ctx, lessonProgressCollection, id); err != nil {
			return err
		}
	}
	return nil
}

func progressQuery(enrollmentID string) docstore.Query {
	return docstore.Query{
		Filters: []docstore.Filter{docstore.Where("enrollment_id", docstore.OpEq, enrollmentID)},
	}
}

func progressMap(found []docstore.Document) (map[string]*models.LessonProgress, error) {
	byLesson := make(map[string]*models.LessonProgress, len(found))
	for _, doc := range found {
		p, err := models.LessonProgressFromMap(doc)
		if err != nil {
			return nil, apperr.Persistence("Failed to read lesson progress", err)
		}
		byLesson[p.LessonID] = p
	}
	return byLesson, nil
}
