package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"learnizone-backend/internal/models"
)

// GradeResult is the outcome of scoring one attempt.
type GradeResult struct {
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
	Score   int  `json:"score"`
	Passed  bool `json:"passed"`
}

// Score returns correct/total as a percentage rounded to the nearest
// integer, halves away from zero. An empty quiz scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(pct.IntPart())
}

// GradeAttempt scores answers against the quiz. Questions without an answer
// count as incorrect.
func GradeAttempt(quiz *models.Quiz, answers []models.QuestionAnswer) GradeResult {
	byQuestion := make(map[string]models.QuestionAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := GradeResult{Total: len(quiz.Questions)}
	for _, q := range quiz.Questions {
		if IsCorrect(q, byQuestion[q.ID]) {
			result.Correct++
		}
	}
	result.Score = Score(result.Correct, result.Total)
	result.Passed = result.Score >= quiz.PassingScore
	return result
}

// IsCorrect grades a single answer. Choice and matching questions need the
// answer set to equal the reference set exactly. Free-text questions match
// any of their reference answers, or any non-blank text when none is given.
func IsCorrect(q models.Question, a models.QuestionAnswer) bool {
	switch q.Type {
	case models.QuestionSingleChoice, models.QuestionTrueFalse, models.QuestionMatching:
		return sameSet(answerSet(q.Type, a), q.CorrectAnswers)
	case models.QuestionFillInBlank, models.QuestionShortAnswer, models.QuestionEssay:
		given := strings.TrimSpace(a.Value)
		if given == "" {
			return false
		}
		if len(q.CorrectAnswers) == 0 {
			return true
		}
		for _, ref := range q.CorrectAnswers {
			if given == strings.TrimSpace(ref) {
				return true
			}
		}
		return false
	}
	// Quizzes with unknown question types are rejected when an attempt starts.
	return false
}

func answerSet(t models.QuestionType, a models.QuestionAnswer) []string {
	if t.MultiValued() {
		return a.Values
	}
	if strings.TrimSpace(a.Value) == "" {
		return nil
	}
	return []string{a.Value}
}

// sameSet compares two string sets, ignoring order, duplicates, surrounding
// whitespace and blank entries. An empty reference never matches.
func sameSet(given, reference []string) bool {
	want := toSet(reference)
	if len(want) == 0 {
		return false
	}
	got := toSet(given)
	if len(got) != len(want) {
		return false
	}
	for v := range want {
		if _, ok := got[v]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
