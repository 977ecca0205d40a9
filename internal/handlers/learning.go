package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
	"learnizone-backend/internal/services"
)

type EnrollmentHandler struct {
	enrollmentService *services.EnrollmentService
	progressService   *services.ProgressService
}

func NewEnrollmentHandler(enrollmentService *services.EnrollmentService, progressService *services.ProgressService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService, progressService: progressService}
}

func (h *EnrollmentHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.enrollmentService.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": list})
}

func (h *EnrollmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.enrollmentService.Stats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *EnrollmentHandler) Progress(w http.ResponseWriter, r *http.Request) {
	enrollmentID := chi.URLParam(r, "id")
	if _, err := h.progressService.OwnedEnrollment(r.Context(), middleware.GetUserID(r.Context()), enrollmentID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	view, err := h.progressService.CourseProgress(r.Context(), enrollmentID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *EnrollmentHandler) UpdateLessonProgress(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateLessonProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	enrollmentID := chi.URLParam(r, "id")
	if _, err := h.progressService.OwnedEnrollment(r.Context(), middleware.GetUserID(r.Context()), enrollmentID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	progress, err := h.progressService.MarkLessonProgress(r.Context(), enrollmentID, chi.URLParam(r, "lessonId"), req.Progress, req.Completed)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type QuizHandler struct {
	quizRepo *repository.QuizRepo
	attempts *services.AttemptService
}

func NewQuizHandler(quizRepo *repository.QuizRepo, attempts *services.AttemptService) *QuizHandler {
	return &QuizHandler{quizRepo: quizRepo, attempts: attempts}
}

// GetQuiz returns the quiz without its reference answers.
func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz.Public())
}

func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.attempts.Start(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *QuizHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	snap, err := h.attempts.Snapshot(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *QuizHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.RecordAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	attemptID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())
	if err := h.attempts.RecordAnswer(r.Context(), attemptID, userID, req.QuestionID, req.Value, req.Values); err != nil {
		handleServiceError(w, r, err)
		return
	}

	snap, err := h.attempts.Snapshot(r.Context(), attemptID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Submit answers 200 with the graded result, or 409 with the open question
// count when unanswered questions remain and the learner has not confirmed.
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAttemptRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	check, err := h.attempts.RequestSubmit(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Confirm)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if check.RequiresConfirmation {
		writeJSON(w, http.StatusConflict, check)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *QuizHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.attempts.Abandon(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Attempt abandoned"})
}

type NotificationHandler struct {
	notifier *services.Notifier
}

func NewNotificationHandler(notifier *services.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	inbox, err := h.notifier.List(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.MarkRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.Delete(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}

func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.notifier.Preferences(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}

func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	prefs, err := h.notifier.UpdatePreferences(r.Context(), middleware.GetUserID(r.Context()), req.Preferences)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}
