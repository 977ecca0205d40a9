package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
	"learnizone-backend/internal/services"
	"learnizone-backend/internal/worker"
)

// JobQueue hands a stored job to the background workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type CourseHandler struct {
	courseRepo        *repository.CourseRepo
	lessonService     *services.LessonService
	enrollmentService *services.EnrollmentService
}

func NewCourseHandler(courseRepo *repository.CourseRepo, lessonService *services.LessonService, enrollmentService *services.EnrollmentService) *CourseHandler {
	return &CourseHandler{
		courseRepo:        courseRepo,
		lessonService:     lessonService,
		enrollmentService: enrollmentService,
	}
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courseRepo.ListPublished(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

func (h *CourseHandler) Lessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.lessonService.ListForCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lessons": lessons})
}

func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	enrollment, err := h.enrollmentService.Enroll(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollment)
}

func (h *CourseHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.enrollmentService.Unenroll(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Unenrolled"})
}

type LessonHandler struct {
	lessonService *services.LessonService
	jobRepo       *repository.JobRepo
	queue         JobQueue
}

// NewLessonHandler builds the lesson endpoints. queue may be nil, in which
// case quiz generation answers 503.
func NewLessonHandler(lessonService *services.LessonService, jobRepo *repository.JobRepo, queue JobQueue) *LessonHandler {
	return &LessonHandler{lessonService: lessonService, jobRepo: jobRepo, queue: queue}
}

func (h *LessonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLessonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lesson, err := h.lessonService.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

func (h *LessonHandler) Get(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.lessonService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (h *LessonHandler) Next(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.lessonService.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// GenerateQuiz queues a quiz-generation job for the lesson. Progress and the
// result arrive over the WebSocket; the job can also be polled.
func (h *LessonHandler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp("GENERATION_UNAVAILABLE", "Quiz generation is not configured", r))
		return
	}

	var req models.GenerateQuizRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lesson, err := h.lessonService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.ResourceID != "" && !hasResource(lesson, req.ResourceID) {
		handleServiceError(w, r, apperr.Invalid("resource_id", "is not a resource of this lesson"))
		return
	}

	configBytes, _ := json.Marshal(req)
	job := &models.Job{
		UserID:      middleware.GetUserID(r.Context()),
		Type:        worker.JobQuizGeneration,
		ReferenceID: lesson.ID,
		ConfigJSON:  configBytes,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.jobRepo.UpdateStatus(r.Context(), job.ID, "failed")
		h.jobRepo.UpdateError(r.Context(), job.ID, err.Error(), 0)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Could not queue quiz generation", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    job.ID,
		"lesson_id": lesson.ID,
		"status":    job.Status,
	})
}

func hasResource(lesson *models.Lesson, id string) bool {
	for _, res := range lesson.Resources {
		if res.ID == id {
			return true
		}
	}
	return false
}

type JobHandler struct {
	jobRepo *repository.JobRepo
}

func NewJobHandler(jobRepo *repository.JobRepo) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob marks a job that has not finished as cancelled; workers skip it.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	if job.Status == "completed" || job.Status == "failed" {
		writeJSON(w, http.StatusConflict, errorResp("STATE_CONFLICT", "Job has already finished", r))
		return
	}

	if err := h.jobRepo.UpdateStatus(r.Context(), job.ID, "cancelled"); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job cancelled"})
}

func (h *JobHandler) ownedJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, err := h.jobRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}

	userID := middleware.GetUserID(r.Context())
	if job.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return job, true
}
