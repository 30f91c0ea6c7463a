// Package session manages per-user teaching session lifecycle: conversation
// context windowing ([ContextManager]), summarisation ([Summariser],
// [LLMSummariser]), and the hot-cache-backed message registry enforcing the
// one-active-session-per-user invariant.
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

// summarisationPrompt is the system prompt sent to the LLM when summarising
// conversation segments.
const summarisationPrompt = `Summarise the following tutoring conversation between a student and an
assistant. Preserve: topics covered, questions the student asked, misconceptions corrected,
quiz results, and any navigation decisions (module/topic changes). Be concise but preserve
all details relevant to resuming the lesson accurately.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	// Summarise takes a slice of messages and returns a condensed summary string.
	Summarise(ctx context.Context, messages []types.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise sends messages to the LLM with a summarisation prompt and returns
// the summary text. It formats the conversation history into a single user
// message and asks the model to produce a concise summary.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []types.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	// Format messages into a readable transcript for the summariser.
	var sb strings.Builder
	for _, m := range messages {
		speaker := m.Role
		if m.Name != "" {
			speaker = m.Name
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []types.Message{
			{
				Role:    "user",
				Content: sb.String(),
			},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}

	return resp.Content, nil
}
