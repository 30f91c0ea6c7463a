package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// QuizStore is an in-memory [drs.QuizStore] double.
type QuizStore struct {
	mu        sync.Mutex
	quizzes   map[string]model.Quiz
	responses []model.QuizResponse

	CreateErr error
	SubmitErr error
}

var _ drs.QuizStore = (*QuizStore)(nil)

// NewQuizStore constructs an empty [QuizStore].
func NewQuizStore() *QuizStore {
	return &QuizStore{quizzes: make(map[string]model.Quiz)}
}

func (q *QuizStore) CreateQuiz(ctx context.Context, quiz model.Quiz) (model.Quiz, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.CreateErr != nil {
		return model.Quiz{}, q.CreateErr
	}
	q.quizzes[quiz.QuizID] = quiz
	return quiz, nil
}

func (q *QuizStore) GetQuiz(ctx context.Context, quizID string) (model.Quiz, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	quiz, ok := q.quizzes[quizID]
	if !ok {
		return model.Quiz{}, errkind.New(errkind.NotFound, "quiz not found: "+quizID)
	}
	return quiz, nil
}

func (q *QuizStore) SubmitResponse(ctx context.Context, resp model.QuizResponse) (model.QuizResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SubmitErr != nil {
		return model.QuizResponse{}, q.SubmitErr
	}
	quiz, ok := q.quizzes[resp.QuizID]
	if !ok {
		return model.QuizResponse{}, errkind.New(errkind.NotFound, "quiz not found: "+resp.QuizID)
	}
	valid := make(map[int]bool, len(quiz.Questions))
	for _, question := range quiz.Questions {
		valid[question.QuestionNumber] = true
	}
	for num := range resp.Answers {
		if !valid[num] {
			return model.QuizResponse{}, errkind.New(errkind.InvalidInput, "answer references unknown question number")
		}
	}
	resp.SubmittedAt = time.Now()
	q.responses = append(q.responses, resp)
	return resp, nil
}
