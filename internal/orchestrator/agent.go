package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

// agentFunc is the shape every sub-agent implements: given the session and
// the utterance that triggered it, produce the text to deliver (and, via
// [Session.speak], synthesize).
type agentFunc func(ctx context.Context, s *Session, utterance string) (string, error)

// teachingSegmentWords is the approximate size of one teaching delivery
// turn, in words of topic content, before the agent pauses for the student.
const teachingSegmentWords = 90

// teachingAgent continues or starts content delivery for the session's
// current topic, advancing s.position by one segment each call and moving
// to the next topic in curriculum order when the current one is exhausted.
func teachingAgent(ctx context.Context, s *Session, utterance string) (string, error) {
	topic, err := s.currentOrNextTopic(ctx)
	if err != nil {
		return "", err
	}

	words := strings.Fields(topic.Content)
	s.mu.Lock()
	start := s.position
	s.mu.Unlock()
	if start >= len(words) {
		start = 0
		s.advanceTopic(topic.TopicID)
		if topic, err = s.currentOrNextTopic(ctx); err != nil {
			return "", err
		}
		words = strings.Fields(topic.Content)
	}
	end := start + teachingSegmentWords
	if end > len(words) {
		end = len(words)
	}
	segment := strings.Join(words[start:end], " ")

	s.mu.Lock()
	s.position = end
	s.topicID = topic.TopicID
	s.mu.Unlock()

	if s.deps.LLM == nil {
		return segment, nil
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are teaching a student one topic at a time, speaking the given source material conversationally, in your own words, without inventing new facts. Keep it to one short spoken turn.",
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf("Topic: %s\n\nMaterial to teach now:\n%s", topic.Title, segment)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return segment, nil // degrade to the raw segment rather than fail the turn
	}
	return resp.Content, nil
}

// qaAgent answers a student's question using the hybrid retriever, grounded
// in the session's current course.
func qaAgent(ctx context.Context, s *Session, utterance string) (string, error) {
	if s.deps.LLM == nil {
		return "", fmt.Errorf("qa agent: no LLM configured")
	}

	var grounding string
	if s.deps.Retriever != nil {
		results, err := s.deps.Retriever.Retrieve(ctx, "course:"+s.courseID, retrieval.Query{Text: utterance, CourseID: s.courseID})
		if err == nil {
			for _, r := range results {
				grounding += r.Chunk.Text + "\n\n"
			}
		}
	}

	systemPrompt := "Answer the student's question conversationally in one short spoken turn."
	if grounding != "" {
		systemPrompt += " Use only the grounding material below; if it doesn't cover the question, say so plainly.\n\nGrounding material:\n" + grounding
	}

	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: utterance}},
		Temperature:  0.2,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// assessmentAgent generates a single quiz question grounded in the
// session's current topic.
func assessmentAgent(ctx context.Context, s *Session, utterance string) (string, error) {
	if s.deps.LLM == nil {
		return "", fmt.Errorf("assessment agent: no LLM configured")
	}
	s.mu.Lock()
	topicID := s.topicID
	s.mu.Unlock()

	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Generate one short spoken-quiz question (with the correct answer, not read aloud) testing understanding of the current topic.",
		Messages:     []types.Message{{Role: "user", Content: "Current topic id: " + topicID + "\nStudent said: " + utterance}},
		Temperature:  0.4,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// currentOrNextTopic returns the session's current topic, or the
// curriculum's first topic if none has been taught yet.
func (s *Session) currentOrNextTopic(ctx context.Context) (model.Topic, error) {
	if s.deps.Courses == nil {
		return model.Topic{}, fmt.Errorf("teaching agent: no course store configured")
	}
	_, topics, err := s.deps.Courses.GetCurriculum(ctx, s.courseID)
	if err != nil {
		return model.Topic{}, err
	}
	if len(topics) == 0 {
		return model.Topic{}, fmt.Errorf("course %s has no topics", s.courseID)
	}

	s.mu.Lock()
	topicID := s.topicID
	s.mu.Unlock()
	if topicID == "" {
		return topics[0], nil
	}
	for _, t := range topics {
		if t.TopicID == topicID {
			return t, nil
		}
	}
	return topics[0], nil
}

// advanceTopic moves the session to the topic immediately following
// currentTopicID in curriculum order, or leaves it unchanged if
// currentTopicID is the last one.
func (s *Session) advanceTopic(currentTopicID string) {
	ctx := context.Background()
	if s.deps.Courses == nil {
		return
	}
	_, topics, err := s.deps.Courses.GetCurriculum(ctx, s.courseID)
	if err != nil {
		return
	}
	for i, t := range topics {
		if t.TopicID == currentTopicID && i+1 < len(topics) {
			s.mu.Lock()
			s.topicID = topics[i+1].TopicID
			s.position = 0
			s.mu.Unlock()
			return
		}
	}
}
