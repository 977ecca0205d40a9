// Package seed loads the read-only course catalog from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
)

type Catalog struct {
	Courses []CourseEntry `yaml:"courses"`
}

type CourseEntry struct {
	models.Course `yaml:",inline"`
	Lessons       []LessonEntry `yaml:"lessons"`
	Quizzes       []QuizEntry   `yaml:"quizzes"`
}

type LessonEntry struct {
	ID              string          `yaml:"id"`
	Title           string          `yaml:"title"`
	Description     string          `yaml:"description"`
	Content         string          `yaml:"content"`
	Type            string          `yaml:"type"`
	DurationMinutes int             `yaml:"duration_minutes"`
	ContentURL      string          `yaml:"content_url"`
	Prerequisite    string          `yaml:"prerequisite"`
	Free            bool            `yaml:"free"`
	Resources       []ResourceEntry `yaml:"resources"`
}

type ResourceEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	URL         string `yaml:"url"`
	SizeBytes   int64  `yaml:"size_bytes"`
	MimeType    string `yaml:"mime_type"`
}

type QuizEntry struct {
	ID               string          `yaml:"id"`
	Lesson           string          `yaml:"lesson"`
	Title            string          `yaml:"title"`
	Description      string          `yaml:"description"`
	TimeLimitMinutes int             `yaml:"time_limit_minutes"`
	PassingScore     int             `yaml:"passing_score"`
	MaxAttempts      int             `yaml:"max_attempts"`
	Questions        []QuestionEntry `yaml:"questions"`
}

type QuestionEntry struct {
	ID          string   `yaml:"id"`
	Text        string   `yaml:"text"`
	Type        string   `yaml:"type"`
	Options     []string `yaml:"options"`
	Correct     []string `yaml:"correct"`
	Explanation string   `yaml:"explanation"`
}

// Result counts the documents written by Apply.
type Result struct {
	Courses int
	Lessons int
	Quizzes int
}

// Load decodes a catalog and rejects keys it does not know.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

type Seeder struct {
	courses *repository.CourseRepo
	lessons *repository.LessonRepo
	quizzes *repository.QuizRepo
	now     func() time.Time
}

func NewSeeder(courses *repository.CourseRepo, lessons *repository.LessonRepo, quizzes *repository.QuizRepo) *Seeder {
	return &Seeder{courses: courses, lessons: lessons, quizzes: quizzes, now: time.Now}
}

// Apply validates the whole catalog before writing any of it. Documents are
// keyed by their catalog IDs, so applying the same file twice overwrites
// rather than duplicates.
func (s *Seeder) Apply(ctx context.Context, c *Catalog) (Result, error) {
	var (
		courses []*models.Course
		lessons []*models.Lesson
		quizzes []*models.Quiz
	)
	now := s.now().UTC()

	seen := make(map[string]bool)
	for ci, entry := range c.Courses {
		if entry.ID == "" {
			return Result{}, apperr.Invalid(fmt.Sprintf("courses[%d].id", ci), "is required")
		}
		if seen[entry.ID] {
			return Result{}, apperr.Invalid(fmt.Sprintf("courses[%d].id", ci), "duplicate course id")
		}
		seen[entry.ID] = true

		course := entry.Course
		course.LessonCount = len(entry.Lessons)
		if course.CreatedAt.IsZero() {
			course.CreatedAt = now
		}
		courses = append(courses, &course)

		lessonIDs := make(map[string]bool, len(entry.Lessons))
		for li, le := range entry.Lessons {
			lesson, err := le.build(course.ID, li+1)
			if err != nil {
				return Result{}, fmt.Errorf("course %s lesson %d: %w", course.ID, li+1, err)
			}
			lessonIDs[lesson.ID] = true
			lessons = append(lessons, lesson)
		}

		for qi, qe := range entry.Quizzes {
			if qe.ID == "" {
				return Result{}, apperr.Invalid(fmt.Sprintf("courses[%d].quizzes[%d].id", ci, qi), "is required")
			}
			if qe.Lesson != "" && !lessonIDs[qe.Lesson] {
				return Result{}, apperr.Invalid(fmt.Sprintf("courses[%d].quizzes[%d].lesson", ci, qi), "unknown lesson "+qe.Lesson)
			}
			quiz := qe.build(course.ID, now)
			if err := quiz.Validate(); err != nil {
				return Result{}, fmt.Errorf("course %s quiz %s: %w", course.ID, qe.ID, err)
			}
			quizzes = append(quizzes, quiz)
		}
	}

	var res Result
	for _, course := range courses {
		if err := s.courses.Save(ctx, course); err != nil {
			return res, err
		}
		res.Courses++
	}
	for _, lesson := range lessons {
		if err := s.lessons.Save(ctx, lesson); err != nil {
			return res, err
		}
		res.Lessons++
	}
	for _, quiz := range quizzes {
		if err := s.quizzes.Create(ctx, quiz); err != nil {
			return res, err
		}
		res.Quizzes++
	}
	return res, nil
}

func (e LessonEntry) build(courseID string, position int) (*models.Lesson, error) {
	if e.ID == "" {
		return nil, apperr.Invalid("id", "is required")
	}
	req := models.CreateLessonRequest{
		CourseID:        courseID,
		Title:           e.Title,
		Description:     e.Description,
		Content:         e.Content,
		Type:            e.Type,
		OrderIndex:      position,
		DurationMinutes: e.DurationMinutes,
		ContentURL:      e.ContentURL,
		IsFree:          e.Free,
	}
	if e.Prerequisite != "" {
		prereq := e.Prerequisite
		req.PrerequisiteLessonID = &prereq
	}
	for _, r := range e.Resources {
		req.Resources = append(req.Resources, models.CreateResourceRequest{
			ID:            r.ID,
			Title:         r.Title,
			Description:   r.Description,
			Type:          r.Type,
			URL:           r.URL,
			FileSizeBytes: r.SizeBytes,
			MimeType:      r.MimeType,
		})
	}
	return req.Build(e.ID)
}

func (e QuizEntry) build(courseID string, now time.Time) *models.Quiz {
	passing := e.PassingScore
	if passing == 0 {
		passing = 70
	}
	quiz := &models.Quiz{
		ID:               e.ID,
		CourseID:         courseID,
		LessonID:         e.Lesson,
		Title:            e.Title,
		Description:      e.Description,
		TimeLimitMinutes: e.TimeLimitMinutes,
		PassingScore:     passing,
		MaxAttempts:      e.MaxAttempts,
		IsActive:         true,
		CreatedAt:        now,
	}
	for _, q := range e.Questions {
		quiz.Questions = append(quiz.Questions, models.Question{
			ID:             q.ID,
			Text:           q.Text,
			Type:           models.QuestionType(q.Type),
			Options:        q.Options,
			CorrectAnswers: q.Correct,
			Explanation:    q.Explanation,
		})
	}
	return quiz
}
