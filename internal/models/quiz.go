package models

import (
	"fmt"
	"strings"
	"time"

	"learnizone-backend/internal/apperr"
)

type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionFillInBlank  QuestionType = "fill_in_blank"
	QuestionShortAnswer  QuestionType = "short_answer"
	QuestionMatching     QuestionType = "matching"
	QuestionEssay        QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionTrueFalse, QuestionFillInBlank,
		QuestionShortAnswer, QuestionMatching, QuestionEssay:
		return true
	}
	return false
}

// MultiValued types take a set of answers; every other type takes one string.
func (t QuestionType) MultiValued() bool {
	return t == QuestionMatching
}

func (t QuestionType) FreeText() bool {
	switch t {
	case QuestionFillInBlank, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

type Question struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correct_answers,omitempty"`
	ImageURL       string       `json:"image_url,omitempty"`
	Explanation    string       `json:"explanation,omitempty"`
}

type Quiz struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"course_id,omitempty"`
	LessonID         string     `json:"lesson_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Questions        []Question `json:"questions"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	PassingScore     int        `json:"passing_score"`
	MaxAttempts      int        `json:"max_attempts"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Validate checks the invariants an attempt relies on.
func (q *Quiz) Validate() error {
	fields := make(map[string]string)

	if len(q.Questions) == 0 {
		fields["questions"] = "Quiz has no questions"
	}
	if q.TimeLimitMinutes < 0 {
		fields["time_limit_minutes"] = "Time limit cannot be negative"
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		fields["passing_score"] = "Passing score must be between 0 and 100"
	}
	if q.MaxAttempts < 0 {
		fields["max_attempts"] = "Max attempts cannot be negative"
	}

	seen := make(map[string]bool, len(q.Questions))
	for i, question := range q.Questions {
		key := fmt.Sprintf("questions[%d]", i)
		switch {
		case strings.TrimSpace(question.ID) == "":
			fields[key] = "Question ID is required"
		case seen[question.ID]:
			fields[key] = "Duplicate question ID"
		case !question.Type.Valid():
			fields[key] = fmt.Sprintf("Unknown question type %q", question.Type)
		}
		seen[question.ID] = true
	}

	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (q *Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Public strips reference answers before a quiz is sent to a learner.
func (q Quiz) Public() Quiz {
	questions := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswers = nil
		question.Explanation = ""
		questions[i] = question
	}
	q.Questions = questions
	return q
}

type AttemptStatus string

const (
	AttemptUnstarted  AttemptStatus = "unstarted"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptExpired    AttemptStatus = "expired"
	AttemptSubmitted  AttemptStatus = "submitted"
)

type QuestionAnswer struct {
	QuestionID string   `json:"question_id"`
	AttemptID  string   `json:"attempt_id"`
	Value      string   `json:"value,omitempty"`
	Values     []string `json:"values,omitempty"`
}

// Answered reports whether the learner gave a non-blank answer.
func (a QuestionAnswer) Answered(t QuestionType) bool {
	if t.MultiValued() {
		for _, v := range a.Values {
			if strings.TrimSpace(v) != "" {
				return true
			}
		}
		return false
	}
	return strings.TrimSpace(a.Value) != ""
}

// AttemptID is the document id of the n-th attempt of a user on a quiz.
func AttemptID(userID, quizID string, attemptNumber int) string {
	return fmt.Sprintf("%s_%s_%d", userID, quizID, attemptNumber)
}

type QuizAttempt struct {
	ID               string           `json:"id"`
	QuizID           string           `json:"quiz_id"`
	UserID           string           `json:"user_id"`
	AttemptNumber    int              `json:"attempt_number"`
	Status           AttemptStatus    `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          *time.Time       `json:"ended_at"`
	Answers          []QuestionAnswer `json:"answers"`
	Score            int              `json:"score"`
	CorrectCount     int              `json:"correct_count"`
	Passed           bool             `json:"passed"`
	TimeLimitMinutes int              `json:"time_limit_minutes"`
	AutoSubmitted    bool             `json:"auto_submitted"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a *QuizAttempt) Clone() QuizAttempt {
	out := *a
	out.Answers = make([]QuestionAnswer, len(a.Answers))
	for i, ans := range a.Answers {
		if ans.Values != nil {
			ans.Values = append([]string(nil), ans.Values...)
		}
		out.Answers[i] = ans
	}
	if a.EndedAt != nil {
		ended := *a.EndedAt
		out.EndedAt = &ended
	}
	return out
}

type RecordAnswerRequest struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Value      string   `json:"value"`
	Values     []string `json:"values"`
}

type SubmitAttemptRequest struct {
	Confirm bool `json:"confirm"`
}

type GenerateQuizRequest struct {
	Title            string   `json:"title" validate:"omitempty,max=100"`
	NumQuestions     int      `json:"num_questions" validate:"omitempty,min=1,max=30"`
	Difficulty       string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	QuestionTypes    []string `json:"question_types" validate:"omitempty,dive,oneof=single_choice true_false"`
	TimeLimitMinutes int      `json:"time_limit_minutes" validate:"gte=0,lte=180"`
	PassingScore     int      `json:"passing_score" validate:"gte=0,lte=100"`
	MaxAttempts      int      `json:"max_attempts" validate:"gte=0"`
	ResourceID       string   `json:"resource_id"`
}

// GeneratedQuestion is the shape the language model is asked to return.
type GeneratedQuestion struct {
	Question     string   `json:"question"`
	Type         string   `json:"type"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}
