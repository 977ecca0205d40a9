package models

import (
	"encoding/json"
	"time"
)

type Job struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         string          `json:"type"` // "quiz-generation"
	ReferenceID  string          `json:"reference_id"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"` // "pending" | "processing" | "completed" | "failed"
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	ResultID     string          `json:"result_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	JobID    string `json:"job_id"`
	Step     int    `json:"step"`
	StepName string `json:"step_name"`
}

type CompletedEvent struct {
	JobID      string `json:"job_id"`
	ResultID   string `json:"result_id"`
	ResultType string `json:"result_type"`
}

type ErrorEvent struct {
	JobID        string `json:"job_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type CountdownTick struct {
	AttemptID        string `json:"attempt_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type AttemptSubmittedEvent struct {
	AttemptID     string `json:"attempt_id"`
	Score         int    `json:"score"`
	Passed        bool   `json:"passed"`
	AutoSubmitted bool   `json:"auto_submitted"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
