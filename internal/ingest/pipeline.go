// Package ingest implements the document ingest pipeline (component G):
// extract, chunk, embed, index, synthesize curriculum, optionally expand
// topic content, and persist. Progress is recorded against the task record
// at the start of the run and as it reaches the curriculum, expansion,
// persist and completion bands, so a polling client can show incremental
// status; the per-document extract, chunk, embed and index stages record no
// band of their own.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/internal/retrieval/bleveindex"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/queue"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
)

// Progress bands, in percent, matching each pipeline stage.
const (
	bandExtractEnd    = 15
	bandChunkEnd      = 25
	bandEmbedEnd      = 60
	bandIndexEnd      = 70
	bandCurriculumEnd = 90
	bandExpansionEnd  = 98
	bandPersistEnd    = 100
)

// Pipeline wires the ingest stages together and implements [worker.Handler]
// so it can be driven directly by the worker pool.
type Pipeline struct {
	Embeddings embeddings.Provider
	Index      vectorindex.Index
	Sparse     *bleveindex.Index
	LLM        llm.Provider
	Retriever  *retrieval.Retriever // optional; content expansion is skipped if nil
	Courses    drs.CourseStore
	Tasks      drs.TaskStore
}

// Handle decodes task.Payload as a [model.IngestPayload] and runs the full
// ingest pipeline against it, reporting progress to Tasks throughout.
func (p *Pipeline) Handle(ctx context.Context, task queue.Task) error {
	var payload model.IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.InvalidInput, "decode ingest payload", err)
	}

	logger := slog.With("task_id", task.TaskID, "course_title", payload.CourseTitle)
	courseID := uuid.NewString()
	collection := "course:" + courseID

	p.progress(ctx, task.TaskID, 0, "extracting documents")

	var allChunks []model.Chunk
	var partialFailures []string
	succeeded := 0

	for _, doc := range payload.Documents {
		chunks, err := p.ingestDocument(ctx, doc, collection)
		if err != nil {
			logger.Warn("document ingest failed", "filename", doc.Filename, "error", err)
			partialFailures = append(partialFailures, fmt.Sprintf("%s: %v", doc.Filename, err))
			continue
		}
		allChunks = append(allChunks, chunks...)
		succeeded++
	}

	if succeeded == 0 {
		return errkind.New(errkind.InvalidInput, fmt.Sprintf("all %d documents failed to ingest", len(payload.Documents)))
	}

	p.progress(ctx, task.TaskID, bandIndexEnd, "synthesizing curriculum")
	modules, topics, err := synthesizeCurriculum(ctx, p.LLM, courseID, allChunks)
	if err != nil {
		return err
	}

	p.progress(ctx, task.TaskID, bandCurriculumEnd, "expanding topic content")
	topics = expandTopicContent(ctx, p.LLM, p.Retriever, collection, topics)

	p.progress(ctx, task.TaskID, bandExpansionEnd, "persisting course")
	course := model.Course{
		CourseID: courseID,
		Title:    payload.CourseTitle,
		Language: payload.Language,
		Country:  payload.Country,
	}
	if _, err := persistCourse(ctx, p.Courses, course, modules, topics); err != nil {
		return err
	}

	if p.Tasks != nil {
		if err := p.Tasks.UpsertTask(ctx, model.IngestTask{
			TaskID:          task.TaskID,
			State:           model.TaskSucceeded,
			ProgressPercent: bandPersistEnd,
			ProgressMessage: "done",
			PartialFailures: partialFailures,
		}); err != nil {
			logger.Warn("record task completion", "error", err)
		}
	}

	return nil
}

// ingestDocument runs extract → chunk → embed → index for a single document
// blob, returning its indexed chunks.
func (p *Pipeline) ingestDocument(ctx context.Context, doc model.DocumentBlob, collection string) ([]model.Chunk, error) {
	sourceDocID := uuid.NewSHA1(uuid.NameSpaceOID, doc.Data).String()

	pages, err := extract(doc.Data)
	if err != nil {
		return nil, err
	}

	raw := chunkPages(pages)
	if len(raw) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "document produced no chunks")
	}

	chunks, err := embedChunks(ctx, p.Embeddings, raw, sourceDocID)
	if err != nil {
		return nil, err
	}

	if err := upsertChunks(ctx, p.Index, p.Sparse, collection, chunks); err != nil {
		return nil, err
	}

	return chunks, nil
}

func (p *Pipeline) progress(ctx context.Context, taskID string, percent int, message string) {
	if p.Tasks == nil {
		return
	}
	if err := p.Tasks.UpsertTask(ctx, model.IngestTask{
		TaskID:          taskID,
		State:           model.TaskRunning,
		ProgressPercent: percent,
		ProgressMessage: message,
	}); err != nil {
		slog.Warn("update task progress", "task_id", taskID, "error", err)
	}
}
