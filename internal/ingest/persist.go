package ingest

import (
	"context"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// persistCourse writes course, then its modules and topics. These are two
// store calls, each in its own transaction; if the curriculum write fails,
// the course is deleted again so no course without a curriculum is left
// behind. The already-upserted index entries from [upsertChunks] are left
// in place; chunk ids are deterministic, so re-indexing the same documents
// into a collection overwrites them.
func persistCourse(ctx context.Context, store drs.CourseStore, course model.Course, modules []model.Module, topics []model.Topic) (model.Course, error) {
	created, err := store.CreateCourse(ctx, course)
	if err != nil {
		return model.Course{}, errkind.Wrap(errkind.Transient, "create course", err)
	}
	if err := store.ReplaceCurriculum(ctx, created.CourseID, modules, topics); err != nil {
		_ = store.DeleteCourse(ctx, created.CourseID)
		return model.Course{}, errkind.Wrap(errkind.Transient, "replace curriculum", err)
	}
	return created, nil
}
