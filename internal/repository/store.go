package repository

import (
	"context"
	"errors"
	"log"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
)

const (
	usersCollection          = "users"
	userSettingsCollection   = "user_settings"
	coursesCollection        = "courses"
	lessonsCollection        = "lessons"
	enrollmentsCollection    = "enrollments"
	lessonProgressCollection = "lesson_progress"
	quizzesCollection        = "quizzes"
	quizAttemptsCollection   = "quiz_attempts"
	notificationsCollection  = "notifications"
	jobsCollection           = "jobs"
)

const noNetworkMessage = "No internet connection available"

// docs is embedded by every repository. It checks reachability before each
// remote call and maps store errors onto the apperr taxonomy.
type docs struct {
	store docstore.Store
}

func (d docs) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.store.Ping(ctx); err != nil {
		log.Printf("repository: store unreachable: %v", err)
		return &apperr.NetworkUnavailable{Message: noNetworkMessage}
	}
	return nil
}

func (d docs) get(ctx context.Context, collection, id, notFound string) (docstore.Document, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	doc, err := d.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &apperr.NotFoundError{Message: notFound}
	}
	if err != nil {
		return nil, apperr.Persistence("Failed to load "+collection, err)
	}
	return doc, nil
}

func (d docs) getInto(ctx context.Context, collection, id, notFound string, v any) error {
	doc, err := d.get(ctx, collection, id, notFound)
	if err != nil {
		return err
	}
	if err := docstore.Decode(doc, v); err != nil {
		return apperr.Persistence("Failed to read "+collection, err)
	}
	return nil
}

func (d docs) put(ctx context.Context, collection, id string, v any) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	doc, err := docstore.Encode(v)
	if err != nil {
		return apperr.Persistence("Failed to save "+collection, err)
	}
	if err := d.store.Set(ctx, collection, id, doc); err != nil {
		return apperr.Persistence("Failed to save "+collection, err)
	}
	return nil
}

func (d docs) merge(ctx context.Context, collection, id, notFound string, fields docstore.Document) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	err := d.store.Update(ctx, collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.NotFoundError{Message: notFound}
	}
	if err != nil {
		return apperr.Persistence("Failed to update "+collection, err)
	}
	return nil
}

func (d docs) remove(ctx context.Context, collection, id string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.store.Delete(ctx, collection, id); err != nil {
		return apperr.Persistence("Failed to delete from "+collection, err)
	}
	return nil
}

func (d docs) query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	found, err := d.store.Query(ctx, collection, q)
	if err != nil {
		return nil, apperr.Persistence("Failed to query "+collection, err)
	}
	return found, nil
}

// queryAll runs q and decodes every document into a T.
func queryAll[T any](ctx context.Context, d docs, collection string, q docstore.Query) ([]T, error) {
	found, err := d.query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(found))
	for _, doc := range found {
		var v T
		if err := docstore.Decode(doc, &v); err != nil {
			return nil, apperr.Persistence("Failed to read "+collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}
