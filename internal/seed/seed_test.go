package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/docstore"
	"learnizone-backend/internal/repository"
)

type fixture struct {
	seeder  *Seeder
	courses *repository.CourseRepo
	lessons *repository.LessonRepo
	quizzes *repository.QuizRepo
}

func newFixture() *fixture {
	store := docstore.NewMemory()
	f := &fixture{
		courses: repository.NewCourseRepo(store),
		lessons: repository.NewLessonRepo(store),
		quizzes: repository.NewQuizRepo(store),
	}
	f.seeder = NewSeeder(f.courses, f.lessons, f.quizzes)
	return f
}

func TestApplyBundledCatalog(t *testing.T) {
	catalog, err := LoadFile("../../seed/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	f := newFixture()
	ctx := context.Background()
	res, err := f.seeder.Apply(ctx, catalog)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res != (Result{Courses: 2, Lessons: 5, Quizzes: 2}) {
		t.Errorf("unexpected result %+v", res)
	}

	course, err := f.courses.GetByID(ctx, "go-fundamentals")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if course.InstructorName != "Dana Okafor" || !course.IsPublished || course.LessonCount != 3 {
		t.Errorf("unexpected course %+v", course)
	}

	lessons, err := f.lessons.ListByCourse(ctx, "go-fundamentals")
	if err != nil {
		t.Fatalf("ListByCourse: %v", err)
	}
	if len(lessons) != 3 {
		t.Fatalf("expected 3 lessons, got %d", len(lessons))
	}
	for i, l := range lessons {
		if l.OrderIndex != i+1 {
			t.Errorf("lesson %s: order index %d, want %d", l.ID, l.OrderIndex, i+1)
		}
	}

	quiz, err := f.quizzes.GetByID(ctx, "go-fundamentals-types-quiz")
	if err != nil {
		t.Fatalf("quiz: %v", err)
	}
	if quiz.LessonID != "go-fundamentals-02" || len(quiz.Questions) != 3 || !quiz.IsActive {
		t.Errorf("unexpected quiz %+v", quiz)
	}

	// A second run overwrites by ID.
	if _, err := f.seeder.Apply(ctx, catalog); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	published, err := f.courses.ListPublished(ctx)
	if err != nil {
		t.Fatalf("ListPublished: %v", err)
	}
	if len(published) != 2 {
		t.Errorf("expected 2 courses after reseeding, got %d", len(published))
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("courses:\n  - id: go\n    titel: Typo\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown key")
	}
}

func TestLoadEmpty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Courses) != 0 {
		t.Errorf("expected no courses, got %d", len(c.Courses))
	}
}

func TestApplyValidatesBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing course id", "courses:\n  - title: Go\n"},
		{"duplicate course", "courses:\n  - id: go\n    title: Go\n  - id: go\n    title: Again\n"},
		{"lesson without title", "courses:\n  - id: go\n    title: Go\n    lessons:\n      - id: l1\n"},
		{"quiz on unknown lesson", "courses:\n  - id: go\n    title: Go\n    quizzes:\n      - id: qz\n        lesson: nope\n        questions:\n          - {id: q1, text: x, type: true_false, correct: [\"True\"]}\n"},
		{"quiz without questions", "courses:\n  - id: go\n    title: Go\n    quizzes:\n      - id: qz\n        title: Empty\n"},
		{"bad question type", "courses:\n  - id: go\n    title: Go\n    quizzes:\n      - id: qz\n        questions:\n          - {id: q1, text: x, type: riddle}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			catalog, err := Load(strings.NewReader(tc.yaml))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			f := newFixture()
			_, err = f.seeder.Apply(context.Background(), catalog)
			var v *apperr.ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected a ValidationError, got %v", err)
			}
			published, _ := f.courses.ListPublished(context.Background())
			if len(published) != 0 {
				t.Errorf("expected nothing written, found %d courses", len(published))
			}
		})
	}
}
