package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/middleware"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/services"
)

const maxBodyBytes = 1 << 20

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.Login(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.authService.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return errorRespWithFields(code, message, nil, r)
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: middleware.RequestIDFrom(r),
		},
	}
}

// decodeJSON reads a request body into v and validates it. On failure the
// error response has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}

	if err := models.Validator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fieldMessage(fe)
			}
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return "is invalid"
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *apperr.ValidationError
		notFound    *apperr.NotFoundError
		conflict    *apperr.ConflictError
		state       *apperr.StateConflict
		limit       *apperr.AttemptLimitExceeded
		network     *apperr.NetworkUnavailable
		persistence *apperr.PersistenceFailure
		unauth      *apperr.UnauthorizedError
		forbidden   *apperr.ForbiddenError
		rateLimit   *apperr.RateLimitError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &state):
		writeJSON(w, http.StatusConflict, errorResp("STATE_CONFLICT", state.Message, r))
	case errors.As(err, &limit):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("ATTEMPT_LIMIT_EXCEEDED", limit.Message, r))
	case errors.As(err, &network):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("NETWORK_UNAVAILABLE", network.Message, r))
	case errors.As(err, &persistence):
		writeJSON(w, http.StatusBadGateway, errorResp("PERSISTENCE_FAILURE", persistence.Message, r))
	case errors.As(err, &unauth):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauth.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &rateLimit):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimit.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
