package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/models"
)

type JobRepo struct {
	docs
}

func NewJobRepo(store docstore.Store) *JobRepo {
	return &JobRepo{docs{store}}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.NewString()
	j.Status = "pending"
	j.RetryCount = 0
	j.MaxRetries = 3
	j.CreatedAt = time.Now().UTC()
	if len(j.ConfigJSON) == 0 {
		j.ConfigJSON = []byte("{}")
	}
	return r.put(ctx, jobsCollection, j.ID, j)
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	if err := r.getInto(ctx, jobsCollection, id, "Job not found", &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id, status string) error {
	fields := docstore.Document{"status": status}
	if status == "completed" || status == "failed" {
		fields["completed_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return r.merge(ctx, jobsCollection, id, "Job not found", fields)
}

func (r *JobRepo) UpdateError(ctx context.Context, id, errMsg string, retryCount int) error {
	return r.merge(ctx, jobsCollection, id, "Job not found", docstore.Document{
		"error_message": errMsg,
		"retry_count":   retryCount,
	})
}

func (r *JobRepo) SetResult(ctx context.Context, id, resultID string) error {
	return r.merge(ctx, jobsCollection, id, "Job not found", docstore.Document{"result_id": resultID})
}
