package postgres

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// CreateCourse implements [drs.CourseStore]. CourseNumber is assigned
// atomically from the course_numbers counter row, which is locked for the
// duration of the transaction so concurrent inserts never race.
func (s *Store) CreateCourse(ctx context.Context, course model.Course) (model.Course, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Course{}, errkind.Wrap(errkind.Transient, "begin create course tx", err)
	}
	defer tx.Rollback(ctx)

	var number int64
	if err := tx.QueryRow(ctx, `
		UPDATE course_numbers SET next_number = next_number + 1
		RETURNING next_number - 1`).Scan(&number); err != nil {
		return model.Course{}, errkind.Wrap(errkind.Transient, "allocate course number", err)
	}
	course.CourseNumber = number

	_, err = tx.Exec(ctx, `
		INSERT INTO courses (course_id, course_number, title, description, language, country, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		course.CourseID, course.CourseNumber, course.Title, course.Description,
		course.Language, course.Country, course.OwnerID,
	)
	if err != nil {
		return model.Course{}, errkind.Wrap(errkind.Transient, "insert course", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Course{}, errkind.Wrap(errkind.Transient, "commit create course tx", err)
	}
	return course, nil
}

// GetCourse implements [drs.CourseStore].
func (s *Store) GetCourse(ctx context.Context, idOrNumber string) (model.Course, error) {
	var (
		c   model.Course
		row pgx.Row
	)
	if n, err := strconv.ParseInt(idOrNumber, 10, 64); err == nil {
		row = s.pool.QueryRow(ctx, `
			SELECT course_id, course_number, title, description, language, country, owner_id, created_at, updated_at
			FROM courses WHERE course_number = $1`, n)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT course_id, course_number, title, description, language, country, owner_id, created_at, updated_at
			FROM courses WHERE course_id = $1`, idOrNumber)
	}
	if err := row.Scan(&c.CourseID, &c.CourseNumber, &c.Title, &c.Description, &c.Language, &c.Country, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return model.Course{}, errkind.New(errkind.NotFound, "course not found: "+idOrNumber)
		}
		return model.Course{}, errkind.Wrap(errkind.Transient, "get course", err)
	}
	return c, nil
}

// ListCourses implements [drs.CourseStore].
func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_id, course_number, title, description, language, country, owner_id, created_at, updated_at
		FROM courses ORDER BY course_number ASC`)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "list courses", err)
	}
	courses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Course, error) {
		var c model.Course
		err := row.Scan(&c.CourseID, &c.CourseNumber, &c.Title, &c.Description, &c.Language, &c.Country, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "scan courses", err)
	}
	return courses, nil
}

// ReplaceCurriculum implements [drs.CourseStore]. It deletes the existing
// modules (cascading topics) and inserts the new tree in one transaction.
func (s *Store) ReplaceCurriculum(ctx context.Context, courseID string, modules []model.Module, topics []model.Topic) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "begin replace curriculum tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM modules WHERE course_id = $1`, courseID); err != nil {
		return errkind.Wrap(errkind.Transient, "delete existing modules", err)
	}

	batch := &pgx.Batch{}
	for _, m := range modules {
		objectives, _ := json.Marshal(m.Objectives)
		batch.Queue(`
			INSERT INTO modules (module_id, course_id, week, title, description, objectives)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ModuleID, courseID, m.Week, m.Title, m.Description, objectives)
	}
	for _, t := range topics {
		batch.Queue(`
			INSERT INTO topics (topic_id, module_id, title, content, order_index, estimated_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.TopicID, t.ModuleID, t.Title, t.Content, t.OrderIndex, t.EstimatedMinutes)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(modules)+len(topics); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return errkind.Wrap(errkind.Transient, "insert curriculum tree", err)
		}
	}
	if err := br.Close(); err != nil {
		return errkind.Wrap(errkind.Transient, "close curriculum batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, "commit replace curriculum tx", err)
	}
	return nil
}

// GetCurriculum implements [drs.CourseStore].
func (s *Store) GetCurriculum(ctx context.Context, courseID string) ([]model.Module, []model.Topic, error) {
	modRows, err := s.pool.Query(ctx, `
		SELECT module_id, course_id, week, title, description, objectives
		FROM modules WHERE course_id = $1 ORDER BY week ASC`, courseID)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Transient, "get modules", err)
	}
	modules, err := pgx.CollectRows(modRows, func(row pgx.CollectableRow) (model.Module, error) {
		var m model.Module
		var raw []byte
		if err := row.Scan(&m.ModuleID, &m.CourseID, &m.Week, &m.Title, &m.Description, &raw); err != nil {
			return model.Module{}, err
		}
		_ = json.Unmarshal(raw, &m.Objectives)
		return m, nil
	})
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Transient, "scan modules", err)
	}

	topicRows, err := s.pool.Query(ctx, `
		SELECT t.topic_id, t.module_id, t.title, t.content, t.order_index, t.estimated_minutes
		FROM topics t JOIN modules m ON m.module_id = t.module_id
		WHERE m.course_id = $1 ORDER BY m.week ASC, t.order_index ASC`, courseID)
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Transient, "get topics", err)
	}
	topics, err := pgx.CollectRows(topicRows, func(row pgx.CollectableRow) (model.Topic, error) {
		var t model.Topic
		err := row.Scan(&t.TopicID, &t.ModuleID, &t.Title, &t.Content, &t.OrderIndex, &t.EstimatedMinutes)
		return t, err
	})
	if err != nil {
		return nil, nil, errkind.Wrap(errkind.Transient, "scan topics", err)
	}
	return modules, topics, nil
}

// DeleteCourse implements [drs.CourseStore]. Cascading foreign keys remove
// modules, topics, quizzes, and quiz responses; messages referencing the
// course keep their row (metadata only) per the ownership rules in the data
// model.
func (s *Store) DeleteCourse(ctx context.Context, courseID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM courses WHERE course_id = $1`, courseID); err != nil {
		return errkind.Wrap(errkind.Transient, "delete course", err)
	}
	return nil
}
