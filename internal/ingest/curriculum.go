package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

const maxCurriculumRetries = 2

// curriculumSchemaPrompt instructs the model to emit exactly one JSON object
// describing the course outline, with no surrounding prose.
const curriculumSchemaPrompt = `You are generating a course curriculum from source material. Respond with a single JSON object and nothing else, matching exactly this shape:
{
  "modules": [
    {
      "title": "string",
      "description": "string",
      "objectives": ["string"],
      "topics": [
        {"title": "string", "content": "string", "estimated_minutes": 0}
      ]
    }
  ]
}
Modules must be ordered as they should be taught. Topics within a module must be ordered as they should be taught. Do not include week numbers or ids; those are assigned by the caller.`

type curriculumTopic struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

type curriculumModule struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Objectives  []string          `json:"objectives"`
	Topics      []curriculumTopic `json:"topics"`
}

type curriculumDoc struct {
	Modules []curriculumModule `json:"modules"`
}

// synthesizeCurriculum asks provider to outline a course from the ingested
// chunk corpus, retrying up to maxCurriculumRetries times if the response
// does not parse into the expected schema.
func synthesizeCurriculum(ctx context.Context, provider llm.Provider, courseID string, chunks []model.Chunk) ([]model.Module, []model.Topic, error) {
	corpus := corpusDigest(chunks)

	var lastErr error
	for attempt := 0; attempt <= maxCurriculumRetries; attempt++ {
		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: curriculumSchemaPrompt,
			Messages: []types.Message{
				{Role: "user", Content: corpus},
			},
			Temperature: 0,
		})
		if err != nil {
			lastErr = err
			if !errkind.Of(err).Retryable() {
				break
			}
			continue
		}

		doc, parseErr := parseCurriculum(resp.Content)
		if parseErr != nil {
			lastErr = errkind.Wrap(errkind.GarbageOutput, "curriculum schema violation", parseErr)
			continue
		}

		modules, topics := buildModulesAndTopics(courseID, doc)
		return modules, topics, nil
	}
	return nil, nil, errkind.Wrap(errkind.GarbageOutput, "curriculum synthesis exhausted retries", lastErr)
}

func parseCurriculum(content string) (curriculumDoc, error) {
	content = strings.TrimSpace(content)
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return curriculumDoc{}, fmt.Errorf("no JSON object found in response")
	}

	var doc curriculumDoc
	if err := json.Unmarshal([]byte(content[start:end+1]), &doc); err != nil {
		return curriculumDoc{}, fmt.Errorf("decode curriculum json: %w", err)
	}
	if len(doc.Modules) == 0 {
		return curriculumDoc{}, fmt.Errorf("curriculum has no modules")
	}
	for _, m := range doc.Modules {
		if strings.TrimSpace(m.Title) == "" {
			return curriculumDoc{}, fmt.Errorf("module missing title")
		}
		if len(m.Topics) == 0 {
			return curriculumDoc{}, fmt.Errorf("module %q has no topics", m.Title)
		}
	}
	return doc, nil
}

func buildModulesAndTopics(courseID string, doc curriculumDoc) ([]model.Module, []model.Topic) {
	modules := make([]model.Module, 0, len(doc.Modules))
	var topics []model.Topic

	for i, m := range doc.Modules {
		week := i + 1
		moduleID := fmt.Sprintf("%s-m%d", courseID, week)
		modules = append(modules, model.Module{
			ModuleID:    moduleID,
			CourseID:    courseID,
			Week:        week,
			Title:       m.Title,
			Description: m.Description,
			Objectives:  m.Objectives,
		})
		for j, t := range m.Topics {
			topics = append(topics, model.Topic{
				TopicID:          fmt.Sprintf("%s-t%d", moduleID, j+1),
				ModuleID:         moduleID,
				Title:            t.Title,
				Content:          t.Content,
				OrderIndex:       j + 1,
				EstimatedMinutes: t.EstimatedMinutes,
			})
		}
	}
	return modules, topics
}

// corpusDigest concatenates chunk text into a single prompt payload, capped
// to keep curriculum synthesis within a reasonable context budget.
func corpusDigest(chunks []model.Chunk) string {
	const maxWords = 20000
	var sb strings.Builder
	words := 0
	for _, c := range chunks {
		w := wordCount(c.Text)
		if words+w > maxWords {
			break
		}
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
		words += w
	}
	return sb.String()
}
