package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
	"learnizone-backend/internal/services"
)

const (
	JobQuizGeneration = "quiz-generation"

	defaultPassingScore = 70
	jobLockTTL          = 10 * time.Minute
)

// QuestionGenerator writes quiz questions from lesson material.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, config models.GenerateQuizRequest, content string) ([]models.Question, error)
}

// TranscriptSource fetches the spoken text of a video.
type TranscriptSource interface {
	GetTranscript(ctx context.Context, videoID string) (string, error)
}

// ResourceReader pulls the text out of a lesson attachment.
type ResourceReader interface {
	Extract(ctx context.Context, r models.LessonResource) (string, error)
}

type Pool struct {
	redis       *redis.Client
	generator   QuestionGenerator
	transcripts TranscriptSource
	resources   ResourceReader
	publisher   services.Publisher
	jobRepo     *repository.JobRepo
	lessonRepo  *repository.LessonRepo
	quizRepo    *repository.QuizRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	generator QuestionGenerator,
	transcripts TranscriptSource,
	resources ResourceReader,
	publisher services.Publisher,
	jobRepo *repository.JobRepo,
	lessonRepo *repository.LessonRepo,
	quizRepo *repository.QuizRepo,
	workerCount int,
) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		generator:   generator,
		transcripts: transcripts,
		resources:   resources,
		publisher:   publisher,
		jobRepo:     jobRepo,
		lessonRepo:  lessonRepo,
		quizRepo:    quizRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue pushes a stored job onto its Redis queue. Without Redis the job
// runs on its own goroutine in this process.
func (p *Pool) Enqueue(ctx context.Context, job *models.Job) error {
	if p.redis == nil {
		go p.process(context.Background(), -1, job)
		return nil
	}
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := p.redis.LPush(ctx, jobQueueName(job.Type), string(jobBytes)).Err(); err != nil {
		return fmt.Errorf("failed to queue job: %w", err)
	}
	return nil
}

func (p *Pool) Start() {
	if p.generator == nil {
		log.Printf("Quiz generation disabled: no question generator configured")
		return
	}
	if p.redis == nil {
		log.Printf("Worker pool running in-process: jobs run as they are enqueued")
		return
	}
	queues := []string{jobQueueName(JobQuizGeneration)}
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil || len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", jobLockTTL).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		p.process(ctx, id, &job)
		p.redis.Del(ctx, lockKey)
	}
}

// process runs one job and records its outcome.
func (p *Pool) process(ctx context.Context, workerID int, job *models.Job) {
	if stored, err := p.jobRepo.GetByID(ctx, job.ID); err == nil && stored.Status == "cancelled" {
		log.Printf("Worker %d: skipping cancelled job %s", workerID, job.ID)
		return
	}

	log.Printf("Worker %d: processing job %s (type: %s)", workerID, job.ID, job.Type)
	if err := p.jobRepo.UpdateStatus(ctx, job.ID, "processing"); err != nil {
		log.Printf("Worker %d: job %s status: %v", workerID, job.ID, err)
	}

	var (
		resultID string
		err      error
	)
	switch job.Type {
	case JobQuizGeneration:
		resultID, err = p.processQuiz(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, resultID)
}

func (p *Pool) processQuiz(ctx context.Context, job *models.Job) (string, error) {
	var config models.GenerateQuizRequest
	if len(job.ConfigJSON) > 0 {
		if err := json.Unmarshal(job.ConfigJSON, &config); err != nil {
			return "", fmt.Errorf("invalid quiz config: %w", err)
		}
	}

	lesson, err := p.lessonRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return "", fmt.Errorf("failed to get lesson: %w", err)
	}

	p.status(ctx, job, 1, "Reading lesson material")
	material, err := p.sourceText(ctx, job, lesson, config.ResourceID)
	if err != nil {
		return "", err
	}

	p.status(ctx, job, 2, "Generating questions")
	questions, err := p.generator.GenerateQuestions(ctx, config, material)
	if err != nil {
		return "", fmt.Errorf("failed to generate questions: %w", err)
	}

	p.status(ctx, job, 3, "Saving quiz")
	quiz := newGeneratedQuiz(lesson, config, questions)
	if err := quiz.Validate(); err != nil {
		return "", err
	}
	if err := p.quizRepo.Create(ctx, quiz); err != nil {
		return "", fmt.Errorf("failed to save quiz: %w", err)
	}

	log.Printf("Generated quiz %s with %d questions for lesson %s", quiz.ID, len(quiz.Questions), lesson.ID)
	return quiz.ID, nil
}

// sourceText gathers what the questions are written from: a chosen
// resource, the lesson body, the video transcript or the first document
// attachment, in that order.
func (p *Pool) sourceText(ctx context.Context, job *models.Job, lesson *models.Lesson, resourceID string) (string, error) {
	var body string

	switch {
	case resourceID != "":
		res, ok := findResource(lesson, resourceID)
		if !ok {
			return "", fmt.Errorf("resource %s not found in lesson %s", resourceID, lesson.ID)
		}
		text, err := p.readResource(ctx, res)
		if err != nil {
			return "", err
		}
		body = text

	case strings.TrimSpace(lesson.Content) != "":
		body = lesson.Content

	case lesson.HasVideo() && services.ExtractVideoID(lesson.ContentURL) != "" && p.transcripts != nil:
		p.status(ctx, job, 1, "Extracting transcript from video")
		text, err := p.transcripts.GetTranscript(ctx, services.ExtractVideoID(lesson.ContentURL))
		if err != nil {
			return "", fmt.Errorf("transcript extraction failed: %w", err)
		}
		body = text

	default:
		for _, r := range lesson.Resources {
			if !r.IsDocument() {
				continue
			}
			text, err := p.readResource(ctx, r)
			if err != nil {
				log.Printf("Skipping resource %s of lesson %s: %v", r.ID, lesson.ID, err)
				continue
			}
			body = text
			break
		}
	}

	if strings.TrimSpace(body) == "" {
		return "", errors.New("lesson has no material to build a quiz from")
	}

	var b strings.Builder
	b.WriteString("Lesson: " + lesson.Title + "\n")
	if lesson.Description != "" {
		b.WriteString(lesson.Description + "\n")
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String(), nil
}

func (p *Pool) readResource(ctx context.Context, r models.LessonResource) (string, error) {
	if p.resources == nil {
		return "", errors.New("resource extraction is not configured")
	}
	text, err := p.resources.Extract(ctx, r)
	if err != nil {
		return "", fmt.Errorf("failed to read resource %s: %w", r.ID, err)
	}
	return text, nil
}

func findResource(lesson *models.Lesson, id string) (models.LessonResource, bool) {
	for _, r := range lesson.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return models.LessonResource{}, false
}

func newGeneratedQuiz(lesson *models.Lesson, config models.GenerateQuizRequest, questions []models.Question) *models.Quiz {
	title := strings.TrimSpace(config.Title)
	if title == "" {
		title = lesson.Title + " Quiz"
	}
	passing := config.PassingScore
	if passing == 0 {
		passing = defaultPassingScore
	}
	return &models.Quiz{
		CourseID:         lesson.CourseID,
		LessonID:         lesson.ID,
		Title:            title,
		Description:      fmt.Sprintf("Generated from %s", lesson.Title),
		Questions:        questions,
		TimeLimitMinutes: config.TimeLimitMinutes,
		PassingScore:     passing,
		MaxAttempts:      config.MaxAttempts,
		IsActive:         true,
	}
}

func (p *Pool) status(ctx context.Context, job *models.Job, step int, name string) {
	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     step,
			StepName: name,
		},
	})
}

func (p *Pool) publish(ctx context.Context, userID string, msg models.WSMessage) {
	if p.publisher != nil {
		p.publisher.Publish(ctx, userID, msg)
	}
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, resultID string) {
	if err := p.jobRepo.SetResult(ctx, job.ID, resultID); err != nil {
		log.Printf("Job %s: failed to store result: %v", job.ID, err)
	}
	if err := p.jobRepo.UpdateStatus(ctx, job.ID, "completed"); err != nil {
		log.Printf("Job %s: failed to update status: %v", job.ID, err)
	}

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   resultID,
			ResultType: getResultType(job.Type),
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if job.RetryCount < maxRetries && p.redis != nil {
		log.Printf("Job %s failed (attempt %d): %s; retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		retry := *job
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			if err := p.Enqueue(context.Background(), &retry); err != nil {
				log.Printf("Job %s: %v", retry.ID, err)
			}
		})
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    "JOB_FAILED",
			ErrorMessage: errMsg,
		},
	})
}

func jobQueueName(jobType string) string {
	return "queue:" + jobType
}

func getResultType(jobType string) string {
	switch jobType {
	case JobQuizGeneration:
		return "quiz"
	default:
		return jobType
	}
}
