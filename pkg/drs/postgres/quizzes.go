package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// CreateQuiz implements [drs.QuizStore].
func (s *Store) CreateQuiz(ctx context.Context, quiz model.Quiz) (model.Quiz, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "begin create quiz tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO quizzes (quiz_id, course_id, module_id, title, kind, passing_score, time_limit_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		quiz.QuizID, quiz.CourseID, quiz.ModuleID, quiz.Title, quiz.Kind, quiz.PassingScore, quiz.TimeLimit,
	)
	if err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "insert quiz", err)
	}

	batch := &pgx.Batch{}
	for _, q := range quiz.Questions {
		options, _ := json.Marshal(q.Options)
		batch.Queue(`
			INSERT INTO quiz_questions (quiz_id, question_number, question_text, options, correct_answer, explanation, difficulty)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			quiz.QuizID, q.QuestionNumber, q.QuestionText, options, q.CorrectAnswer, q.Explanation, q.Difficulty)
	}
	br := tx.SendBatch(ctx, batch)
	for range quiz.Questions {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return model.Quiz{}, errkind.Wrap(errkind.Transient, "insert quiz questions", err)
		}
	}
	if err := br.Close(); err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "close quiz question batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "commit create quiz tx", err)
	}
	return quiz, nil
}

// GetQuiz implements [drs.QuizStore].
func (s *Store) GetQuiz(ctx context.Context, quizID string) (model.Quiz, error) {
	var q model.Quiz
	row := s.pool.QueryRow(ctx, `
		SELECT quiz_id, course_id, module_id, title, kind, passing_score, time_limit_ns
		FROM quizzes WHERE quiz_id = $1`, quizID)
	if err := row.Scan(&q.QuizID, &q.CourseID, &q.ModuleID, &q.Title, &q.Kind, &q.PassingScore, &q.TimeLimit); err != nil {
		if err == pgx.ErrNoRows {
			return model.Quiz{}, errkind.New(errkind.NotFound, "quiz not found: "+quizID)
		}
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "get quiz", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT question_number, question_text, options, correct_answer, explanation, difficulty
		FROM quiz_questions WHERE quiz_id = $1 ORDER BY question_number ASC`, quizID)
	if err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "get quiz questions", err)
	}
	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.QuizQuestion, error) {
		var qq model.QuizQuestion
		var raw []byte
		if err := row.Scan(&qq.QuestionNumber, &qq.QuestionText, &raw, &qq.CorrectAnswer, &qq.Explanation, &qq.Difficulty); err != nil {
			return model.QuizQuestion{}, err
		}
		_ = json.Unmarshal(raw, &qq.Options)
		return qq, nil
	})
	if err != nil {
		return model.Quiz{}, errkind.Wrap(errkind.Transient, "scan quiz questions", err)
	}
	q.Questions = questions
	return q, nil
}

// SubmitResponse implements [drs.QuizStore]. It validates that every answer
// key is a subset of the quiz's question numbers, scores the submission
// against CorrectAnswer, and persists it.
func (s *Store) SubmitResponse(ctx context.Context, resp model.QuizResponse) (model.QuizResponse, error) {
	quiz, err := s.GetQuiz(ctx, resp.QuizID)
	if err != nil {
		return model.QuizResponse{}, err
	}

	byNumber := make(map[int]model.QuizQuestion, len(quiz.Questions))
	for _, q := range quiz.Questions {
		byNumber[q.QuestionNumber] = q
	}

	score := 0
	for num, answer := range resp.Answers {
		q, ok := byNumber[num]
		if !ok {
			return model.QuizResponse{}, errkind.New(errkind.InvalidInput,
				fmt.Sprintf("answer references unknown question number %d", num))
		}
		if answer == q.CorrectAnswer {
			score++
		}
	}
	resp.Score = score
	resp.TotalQuestions = len(quiz.Questions)

	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return model.QuizResponse{}, errkind.Wrap(errkind.InvalidInput, "marshal answers", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_responses (response_id, quiz_id, user_id, answers, score, total_questions, time_taken_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ResponseID, resp.QuizID, resp.UserID, answers, resp.Score, resp.TotalQuestions, resp.TimeTaken,
	)
	if err != nil {
		return model.QuizResponse{}, errkind.Wrap(errkind.Transient, "insert quiz response", err)
	}
	return resp, nil
}
