// Package quiz generates and grades per-module and per-course quizzes.
//
// Generation mirrors internal/ingest's curriculum synthesis: a deterministic
// JSON-schema instruction sent to the LLM client, parsed and validated, with
// a bounded retry on schema violation. Grading delegates to
// [drs.QuizStore.SubmitResponse], which already enforces the
// answers-are-a-subset-of-question-numbers invariant.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

const maxQuizRetries = 2

// DefaultQuestionCount is the number of questions generated when the caller
// does not request a specific count.
const DefaultQuestionCount = 5

// DefaultPassingScore is applied when the caller does not specify one.
const DefaultPassingScore = 70

const quizSchemaPrompt = `You are generating a multiple-choice quiz from course material. Respond with a single JSON object and nothing else, matching exactly this shape:
{
  "title": "string",
  "questions": [
    {
      "question_text": "string",
      "options": ["string", "string", "string", "string"],
      "correct_answer": "A",
      "explanation": "string",
      "difficulty": "easy|medium|hard"
    }
  ]
}
correct_answer must be a single letter indexing options (A is the first option, B the second, and so on). Generate exactly %d questions. Do not include question numbers; those are assigned by the caller.`

type quizQuestionDoc struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
}

type quizDoc struct {
	Title     string            `json:"title"`
	Questions []quizQuestionDoc `json:"questions"`
}

// Generator synthesizes quizzes from a course's persisted curriculum and
// stores them via a [drs.QuizStore].
type Generator struct {
	Courses drs.CourseStore
	Quizzes drs.QuizStore
	LLM     llm.Provider
}

// Options controls a single generation call.
type Options struct {
	// QuestionCount is the number of questions to generate. Zero uses
	// DefaultQuestionCount.
	QuestionCount int
	// PassingScore is the pass mark stored on the generated quiz, as a
	// percentage of questions answered correctly. Zero uses
	// DefaultPassingScore.
	PassingScore int
}

func (o Options) withDefaults() Options {
	if o.QuestionCount <= 0 {
		o.QuestionCount = DefaultQuestionCount
	}
	if o.PassingScore <= 0 {
		o.PassingScore = DefaultPassingScore
	}
	return o
}

// GenerateForModule synthesizes a quiz covering a single module's topics and
// persists it.
func (g *Generator) GenerateForModule(ctx context.Context, courseID string, week int, opts Options) (model.Quiz, error) {
	modules, topics, err := g.Courses.GetCurriculum(ctx, courseID)
	if err != nil {
		return model.Quiz{}, err
	}
	var target model.Module
	found := false
	for _, m := range modules {
		if m.Week == week {
			target = m
			found = true
			break
		}
	}
	if !found {
		return model.Quiz{}, errkind.New(errkind.NotFound, fmt.Sprintf("course %s has no module at week %d", courseID, week))
	}

	var sb strings.Builder
	sb.WriteString(target.Title)
	sb.WriteString("\n")
	sb.WriteString(target.Description)
	sb.WriteString("\n")
	for _, t := range topics {
		if t.ModuleID != target.ModuleID {
			continue
		}
		sb.WriteString(t.Title)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	return g.generate(ctx, courseID, target.ModuleID, model.QuizModule, "Module quiz: "+target.Title, sb.String(), opts)
}

// GenerateForCourse synthesizes a quiz covering every topic of the course
// and persists it.
func (g *Generator) GenerateForCourse(ctx context.Context, courseID string, opts Options) (model.Quiz, error) {
	course, err := g.Courses.GetCourse(ctx, courseID)
	if err != nil {
		return model.Quiz{}, err
	}
	_, topics, err := g.Courses.GetCurriculum(ctx, courseID)
	if err != nil {
		return model.Quiz{}, err
	}
	if len(topics) == 0 {
		return model.Quiz{}, errkind.New(errkind.InvalidInput, fmt.Sprintf("course %s has no topics to quiz over", courseID))
	}

	var sb strings.Builder
	for _, t := range topics {
		sb.WriteString(t.Title)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}

	return g.generate(ctx, courseID, "", model.QuizCourse, "Course quiz: "+course.Title, sb.String(), opts)
}

func (g *Generator) generate(ctx context.Context, courseID, moduleID string, kind model.QuizKind, title, corpus string, opts Options) (model.Quiz, error) {
	opts = opts.withDefaults()
	prompt := fmt.Sprintf(quizSchemaPrompt, opts.QuestionCount)

	var lastErr error
	for attempt := 0; attempt <= maxQuizRetries; attempt++ {
		resp, err := g.LLM.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: prompt,
			Messages:     []types.Message{{Role: "user", Content: corpus}},
			Temperature:  0,
		})
		if err != nil {
			lastErr = err
			if !errkind.Of(err).Retryable() {
				break
			}
			continue
		}

		doc, parseErr := parseQuiz(resp.Content)
		if parseErr != nil {
			lastErr = errkind.Wrap(errkind.GarbageOutput, "quiz schema violation", parseErr)
			continue
		}

		quiz := model.Quiz{
			QuizID:       uuid.NewString(),
			CourseID:     courseID,
			ModuleID:     moduleID,
			Title:        firstNonEmpty(doc.Title, title),
			Kind:         kind,
			PassingScore: opts.PassingScore,
			Questions:    buildQuestions(doc),
		}
		return g.Quizzes.CreateQuiz(ctx, quiz)
	}
	return model.Quiz{}, errkind.Wrap(errkind.GarbageOutput, "quiz synthesis exhausted retries", lastErr)
}

func parseQuiz(content string) (quizDoc, error) {
	content = strings.TrimSpace(content)
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return quizDoc{}, fmt.Errorf("no JSON object found in response")
	}

	var doc quizDoc
	if err := json.Unmarshal([]byte(content[start:end+1]), &doc); err != nil {
		return quizDoc{}, fmt.Errorf("decode quiz json: %w", err)
	}
	if len(doc.Questions) == 0 {
		return quizDoc{}, fmt.Errorf("quiz has no questions")
	}
	for _, q := range doc.Questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			return quizDoc{}, fmt.Errorf("question missing text")
		}
		if len(q.Options) < 2 {
			return quizDoc{}, fmt.Errorf("question %q has fewer than two options", q.QuestionText)
		}
		idx := letterIndex(q.CorrectAnswer)
		if idx < 0 || idx >= len(q.Options) {
			return quizDoc{}, fmt.Errorf("question %q has an out-of-range correct_answer %q", q.QuestionText, q.CorrectAnswer)
		}
	}
	return doc, nil
}

func buildQuestions(doc quizDoc) []model.QuizQuestion {
	questions := make([]model.QuizQuestion, 0, len(doc.Questions))
	for i, q := range doc.Questions {
		questions = append(questions, model.QuizQuestion{
			QuestionNumber: i + 1,
			QuestionText:   q.QuestionText,
			Options:        q.Options,
			CorrectAnswer:  strings.ToUpper(strings.TrimSpace(q.CorrectAnswer)),
			Explanation:    q.Explanation,
			Difficulty:     q.Difficulty,
		})
	}
	return questions
}

// letterIndex converts a single-letter answer key ("A", "B", ...) to a
// zero-based option index, or -1 if ans is not a single letter.
func letterIndex(ans string) int {
	ans = strings.ToUpper(strings.TrimSpace(ans))
	if len(ans) != 1 || ans[0] < 'A' || ans[0] > 'Z' {
		return -1
	}
	return int(ans[0] - 'A')
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Grader submits a user's quiz answers for scoring.
type Grader struct {
	Quizzes drs.QuizStore
}

// Submit validates and scores a response via the durable store and returns
// the stored result along with the set of question numbers the user
// answered correctly.
func (g *Grader) Submit(ctx context.Context, quizID, userID string, answers map[int]string) (model.QuizResponse, []int, error) {
	quiz, err := g.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return model.QuizResponse{}, nil, err
	}

	correctByNumber := make(map[int]string, len(quiz.Questions))
	for _, q := range quiz.Questions {
		correctByNumber[q.QuestionNumber] = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
	}

	score := 0
	var correct []int
	for num, ans := range answers {
		want, ok := correctByNumber[num]
		if !ok {
			continue
		}
		if strings.ToUpper(strings.TrimSpace(ans)) == want {
			score++
			correct = append(correct, num)
		}
	}

	resp := model.QuizResponse{
		ResponseID:     uuid.NewString(),
		QuizID:         quizID,
		UserID:         userID,
		Answers:        answers,
		Score:          score,
		TotalQuestions: len(quiz.Questions),
	}
	stored, err := g.Quizzes.SubmitResponse(ctx, resp)
	if err != nil {
		return model.QuizResponse{}, nil, err
	}
	return stored, correct, nil
}
