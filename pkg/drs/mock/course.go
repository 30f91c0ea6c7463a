package mock

import (
	"context"
	"sync"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// CourseStore is an in-memory [drs.CourseStore] double for the ingest
// pipeline's persist stage.
type CourseStore struct {
	mu      sync.Mutex
	courses map[string]model.Course
	modules map[string][]model.Module
	topics  map[string][]model.Topic
	nextNum int64

	CreateErr           error
	ReplaceCurriculumErr error
}

var _ drs.CourseStore = (*CourseStore)(nil)

// NewCourseStore constructs an empty [CourseStore].
func NewCourseStore() *CourseStore {
	return &CourseStore{
		courses: make(map[string]model.Course),
		modules: make(map[string][]model.Module),
		topics:  make(map[string][]model.Topic),
	}
}

func (c *CourseStore) CreateCourse(ctx context.Context, course model.Course) (model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return model.Course{}, c.CreateErr
	}
	c.nextNum++
	course.CourseNumber = c.nextNum
	c.courses[course.CourseID] = course
	return course, nil
}

func (c *CourseStore) GetCourse(ctx context.Context, idOrNumber string) (model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	course, ok := c.courses[idOrNumber]
	if !ok {
		return model.Course{}, errkind.New(errkind.NotFound, "course not found: "+idOrNumber)
	}
	return course, nil
}

func (c *CourseStore) ListCourses(ctx context.Context) ([]model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Course, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course)
	}
	return out, nil
}

func (c *CourseStore) ReplaceCurriculum(ctx context.Context, courseID string, modules []model.Module, topics []model.Topic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReplaceCurriculumErr != nil {
		return c.ReplaceCurriculumErr
	}
	c.modules[courseID] = modules
	c.topics[courseID] = topics
	return nil
}

func (c *CourseStore) GetCurriculum(ctx context.Context, courseID string) ([]model.Module, []model.Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modules[courseID], c.topics[courseID], nil
}

func (c *CourseStore) DeleteCourse(ctx context.Context, courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.courses, courseID)
	delete(c.modules, courseID)
	delete(c.topics, courseID)
	return nil
}

// TaskStore is an in-memory [drs.TaskStore] double.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]model.IngestTask

	UpsertErr error
}

var _ drs.TaskStore = (*TaskStore)(nil)

// NewTaskStore constructs an empty [TaskStore].
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]model.IngestTask)}
}

func (t *TaskStore) UpsertTask(ctx context.Context, task model.IngestTask) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.UpsertErr != nil {
		return t.UpsertErr
	}
	t.tasks[task.TaskID] = task
	return nil
}

func (t *TaskStore) GetTask(ctx context.Context, taskID string) (model.IngestTask, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return model.IngestTask{}, errkind.New(errkind.NotFound, "task not found: "+taskID)
	}
	return task, nil
}

func (t *TaskStore) RequestCancel(ctx context.Context, taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[taskID]
	if !ok {
		return errkind.New(errkind.NotFound, "task not found: "+taskID)
	}
	task.CancelRequested = true
	t.tasks[taskID] = task
	return nil
}
