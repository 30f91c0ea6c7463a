package orchestrator

import (
	"context"
	"strings"
)

// navigationWords are the explicit spoken commands that win regardless of
// the session's current state, ahead of question/answer or teaching
// dispatch.
var navigationWords = map[string]bool{
	"pause":    true,
	"repeat":   true,
	"next":     true,
	"previous": true,
	"resume":   true,
	"end":      true,
}

// routeNavigation recognizes an explicit navigation command in utterance and
// handles it directly, reporting whether the utterance was consumed this
// way. Navigation commands always win over question/teaching dispatch.
func (s *Session) routeNavigation(ctx context.Context, utterance string, out chan<- Output) bool {
	cmd := navigationCommand(utterance)
	if cmd == "" {
		return false
	}

	switch cmd {
	case "end":
		s.transition(ctx, StateEnded, out)

	case "pause":
		s.mu.Lock()
		s.preempted = s.state
		s.mu.Unlock()
		s.transition(ctx, StateWaitingForUser, out)

	case "resume":
		s.returnToStable(ctx, out)

	case "repeat":
		s.mu.Lock()
		s.position -= teachingSegmentWords
		if s.position < 0 {
			s.position = 0
		}
		s.mu.Unlock()
		s.runAgent(ctx, teachingAgent, utterance, out)

	case "next":
		s.mu.Lock()
		topicID := s.topicID
		s.mu.Unlock()
		s.advanceTopic(topicID)
		s.runAgent(ctx, teachingAgent, utterance, out)

	case "previous":
		s.mu.Lock()
		s.position = 0
		s.mu.Unlock()
		s.retreatTopic()
		s.runAgent(ctx, teachingAgent, utterance, out)
	}
	return true
}

// navigationCommand extracts a recognized navigation keyword from
// utterance, or "" if none is present. Matching is deliberately loose: the
// command word may appear anywhere in a short utterance ("can you repeat
// that", "let's move to the next one").
func navigationCommand(utterance string) string {
	fields := strings.Fields(strings.ToLower(utterance))
	if len(fields) == 0 || len(fields) > 6 {
		return "" // longer utterances are content, not a bare command
	}
	for _, f := range fields {
		f = strings.Trim(f, ".,!?")
		if navigationWords[f] {
			return f
		}
	}
	return ""
}

// retreatTopic moves the session to the topic immediately preceding its
// current one in curriculum order, or leaves it unchanged if already at the
// first topic.
func (s *Session) retreatTopic() {
	ctx := context.Background()
	if s.deps.Courses == nil {
		return
	}
	_, topics, err := s.deps.Courses.GetCurriculum(ctx, s.courseID)
	if err != nil {
		return
	}
	s.mu.Lock()
	current := s.topicID
	s.mu.Unlock()
	for i, t := range topics {
		if t.TopicID == current && i > 0 {
			s.mu.Lock()
			s.topicID = topics[i-1].TopicID
			s.mu.Unlock()
			return
		}
	}
}
