package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"learnizone-backend/internal/models"
)

const (
	defaultQuizQuestions  = 10
	defaultQuizDifficulty = "medium"
	maxQuizContentChars   = 60000
)

// GeminiService writes quiz questions from lesson material.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey string, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// GenerateQuestions asks the model for questions about content and returns
// the usable ones as quiz questions.
func (s *GeminiService) GenerateQuestions(ctx context.Context, config models.GenerateQuizRequest, content string) ([]models.Question, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	if len(content) > maxQuizContentChars {
		content = content[:maxQuizContentChars]
	}
	prompt := buildQuizPrompt(withQuizDefaults(config), content)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	questions := toQuizQuestions(validateQuizQuestions(parseGeneratedQuestions(responseText(resp))))
	if len(questions) == 0 {
		return nil, fmt.Errorf("model returned no usable questions")
	}
	return questions, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

func withQuizDefaults(config models.GenerateQuizRequest) models.GenerateQuizRequest {
	if config.NumQuestions <= 0 {
		config.NumQuestions = defaultQuizQuestions
	}
	if config.Difficulty == "" {
		config.Difficulty = defaultQuizDifficulty
	}
	return config
}

func buildQuizPrompt(config models.GenerateQuizRequest, content string) string {
	var b strings.Builder

	b.WriteString("You are an expert educational assessor. Generate quiz questions based on the following lesson material.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON array. No preamble, no markdown, no backticks.\n\n")

	b.WriteString(fmt.Sprintf("Generate exactly %d questions.\n", config.NumQuestions))

	for _, qt := range config.QuestionTypes {
		if qt == string(models.QuestionTrueFalse) {
			mcCount := config.NumQuestions * 7 / 10
			tfCount := config.NumQuestions - mcCount
			b.WriteString(fmt.Sprintf("Include %d true/false questions and %d multiple choice questions.\n", tfCount, mcCount))
			break
		}
	}

	b.WriteString(fmt.Sprintf("Difficulty: %s\n", config.Difficulty))
	switch config.Difficulty {
	case "easy":
		b.WriteString("Easy = direct recall from text.\n")
	case "medium":
		b.WriteString("Medium = application of concepts.\n")
	case "hard":
		b.WriteString("Hard = analysis, synthesis, or inference beyond what is explicitly stated.\n")
	}

	b.WriteString(`
JSON schema per question:
{"question": "string", "type": "multiple_choice"|"true_false", "options": ["string"], "correct_index": int, "explanation": "string"}

For multiple_choice: exactly 4 options. For true_false: exactly 2 options ["True", "False"].
`)

	b.WriteString("\n---CONTENT---\n")
	b.WriteString(content)
	b.WriteString("\n---END---\n")

	return b.String()
}

// parseGeneratedQuestions reads the model's JSON array, tolerating code
// fences and text around it.
func parseGeneratedQuestions(rawText string) []models.GeneratedQuestion {
	rawText = strings.TrimSpace(rawText)
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	var questions []models.GeneratedQuestion
	if err := json.Unmarshal([]byte(rawText), &questions); err == nil {
		return questions
	}

	start := strings.Index(rawText, "[")
	end := strings.LastIndex(rawText, "]")
	if start >= 0 && end > start {
		questions = nil
		if err := json.Unmarshal([]byte(rawText[start:end+1]), &questions); err != nil {
			log.Printf("WARNING: could not parse generated questions: %v", err)
			return nil
		}
	}
	return questions
}

func validateQuizQuestions(questions []models.GeneratedQuestion) []models.GeneratedQuestion {
	var valid []models.GeneratedQuestion
	for _, q := range questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) == 0 {
			continue
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			q.CorrectIndex = 0
		}
		if q.Type == "true_false" && len(q.Options) != 2 {
			q.Options = []string{"True", "False"}
			if q.CorrectIndex > 1 {
				q.CorrectIndex = 0
			}
		}
		valid = append(valid, q)
	}
	return valid
}

func toQuizQuestions(generated []models.GeneratedQuestion) []models.Question {
	questions := make([]models.Question, 0, len(generated))
	for i, g := range generated {
		qType := models.QuestionSingleChoice
		if g.Type == "true_false" {
			qType = models.QuestionTrueFalse
		}
		questions = append(questions, models.Question{
			ID:             fmt.Sprintf("q%d", i+1),
			Text:           strings.TrimSpace(g.Question),
			Type:           qType,
			Options:        g.Options,
			CorrectAnswers: []string{g.Options[g.CorrectIndex]},
			Explanation:    g.Explanation,
		})
	}
	return questions
}
