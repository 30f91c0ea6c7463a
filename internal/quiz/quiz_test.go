package quiz

import (
	"context"
	"testing"

	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	llmmock "github.com/lumenforge/tutorcore/pkg/provider/llm/mock"

	drsmock "github.com/lumenforge/tutorcore/pkg/drs/mock"
)

const validQuizJSON = `Here is the quiz:
{
  "title": "Module 1 Quiz",
  "questions": [
    {
      "question_text": "What is 2+2?",
      "options": ["3", "4", "5", "6"],
      "correct_answer": "B",
      "explanation": "2+2=4",
      "difficulty": "easy"
    }
  ]
}
Good luck!`

func TestParseQuiz_ValidDocument(t *testing.T) {
	doc, err := parseQuiz(validQuizJSON)
	if err != nil {
		t.Fatalf("parseQuiz: %v", err)
	}
	if len(doc.Questions) != 1 || doc.Questions[0].CorrectAnswer != "B" {
		t.Fatalf("unexpected doc shape: %+v", doc)
	}
}

func TestParseQuiz_OutOfRangeAnswerRejected(t *testing.T) {
	_, err := parseQuiz(`{"questions":[{"question_text":"q","options":["a","b"],"correct_answer":"Z"}]}`)
	if err == nil {
		t.Fatal("expected a schema violation error for an out-of-range correct_answer")
	}
}

func TestParseQuiz_TooFewOptionsRejected(t *testing.T) {
	_, err := parseQuiz(`{"questions":[{"question_text":"q","options":["a"],"correct_answer":"A"}]}`)
	if err == nil {
		t.Fatal("expected a schema violation error for a question with fewer than two options")
	}
}

func courseFixture(courses *drsmock.CourseStore, courseID string) {
	ctx := context.Background()
	courses.CreateCourse(ctx, model.Course{CourseID: courseID, Title: "Filtering Theory"})
	courses.ReplaceCurriculum(ctx, courseID,
		[]model.Module{{ModuleID: "m1", CourseID: courseID, Week: 1, Title: "Estimation Basics"}},
		[]model.Topic{{TopicID: "t1", ModuleID: "m1", Title: "Kalman Filters", Content: "The Kalman filter is a recursive estimator.", OrderIndex: 1}},
	)
}

func TestGenerator_GenerateForModule_SucceedsOnFirstTry(t *testing.T) {
	courses := drsmock.NewCourseStore()
	courseFixture(courses, "course-1")
	quizzes := drsmock.NewQuizStore()
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validQuizJSON}}

	g := &Generator{Courses: courses, Quizzes: quizzes, LLM: provider}
	quiz, err := g.GenerateForModule(context.Background(), "course-1", 1, Options{})
	if err != nil {
		t.Fatalf("GenerateForModule: %v", err)
	}
	if quiz.Kind != model.QuizModule || quiz.ModuleID != "m1" {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].QuestionNumber != 1 {
		t.Fatalf("unexpected questions: %+v", quiz.Questions)
	}
	if quiz.PassingScore != DefaultPassingScore {
		t.Fatalf("expected default passing score, got %d", quiz.PassingScore)
	}
}

func TestGenerator_GenerateForModule_UnknownWeek(t *testing.T) {
	courses := drsmock.NewCourseStore()
	courseFixture(courses, "course-1")
	quizzes := drsmock.NewQuizStore()
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validQuizJSON}}

	g := &Generator{Courses: courses, Quizzes: quizzes, LLM: provider}
	_, err := g.GenerateForModule(context.Background(), "course-1", 7, Options{})
	if err == nil {
		t.Fatal("expected an error for a module week that does not exist")
	}
}

func TestGenerator_GenerateForCourse_RejectsMalformedOutputAfterRetries(t *testing.T) {
	courses := drsmock.NewCourseStore()
	courseFixture(courses, "course-1")
	quizzes := drsmock.NewQuizStore()
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not json at all"}}

	g := &Generator{Courses: courses, Quizzes: quizzes, LLM: provider}
	_, err := g.GenerateForCourse(context.Background(), "course-1", Options{})
	if err == nil {
		t.Fatal("expected synthesis to fail after exhausting retries on malformed output")
	}
	if got := len(provider.CompleteCalls); got != maxQuizRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxQuizRetries+1, got)
	}
}

func TestGrader_Submit_ScoresCorrectAnswers(t *testing.T) {
	quizzes := drsmock.NewQuizStore()
	quizzes.CreateQuiz(context.Background(), model.Quiz{
		QuizID: "quiz-1",
		Questions: []model.QuizQuestion{
			{QuestionNumber: 1, QuestionText: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "B"},
			{QuestionNumber: 2, QuestionText: "3+3?", Options: []string{"6", "5"}, CorrectAnswer: "A"},
		},
	})

	g := &Grader{Quizzes: quizzes}
	resp, correct, err := g.Submit(context.Background(), "quiz-1", "user-1", map[int]string{1: "b", 2: "B"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Score != 1 || resp.TotalQuestions != 2 {
		t.Fatalf("unexpected score: %+v", resp)
	}
	if len(correct) != 1 || correct[0] != 1 {
		t.Fatalf("unexpected correct set: %v", correct)
	}
}

func TestGrader_Submit_UnknownQuestionNumberRejected(t *testing.T) {
	quizzes := drsmock.NewQuizStore()
	quizzes.CreateQuiz(context.Background(), model.Quiz{
		QuizID:    "quiz-1",
		Questions: []model.QuizQuestion{{QuestionNumber: 1, CorrectAnswer: "A", Options: []string{"a", "b"}}},
	})

	g := &Grader{Quizzes: quizzes}
	_, _, err := g.Submit(context.Background(), "quiz-1", "user-1", map[int]string{5: "A"})
	if err == nil {
		t.Fatal("expected an error for an answer referencing an unknown question number")
	}
}
