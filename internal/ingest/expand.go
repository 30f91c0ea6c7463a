package ingest

import (
	"context"

	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

// expandTopicContent asks provider for an expanded explanation of each
// topic, grounded in that topic's own top-K retrieval against the
// just-indexed collection. A retriever of nil, or a single topic's
// expansion failing, is non-fatal: the topic keeps its synthesized content
// and the stage continues, since expansion is optional.
func expandTopicContent(ctx context.Context, provider llm.Provider, retriever *retrieval.Retriever, collection string, topics []model.Topic) []model.Topic {
	if retriever == nil {
		return topics
	}

	out := make([]model.Topic, len(topics))
	copy(out, topics)

	for i, topic := range out {
		results, err := retriever.Retrieve(ctx, collection, retrieval.Query{Text: topic.Title})
		if err != nil || len(results) == 0 {
			continue
		}

		grounding := ""
		for _, r := range results {
			grounding += r.Chunk.Text + "\n\n"
		}

		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: "Expand the following topic into a clear, self-contained explanation for a student, using only the grounding material provided. Two to four paragraphs.",
			Messages: []types.Message{
				{Role: "user", Content: "Topic: " + topic.Title + "\n\nGrounding material:\n" + grounding},
			},
			Temperature: 0.2,
		})
		if err != nil {
			continue
		}
		out[i].Content = resp.Content
	}
	return out
}
