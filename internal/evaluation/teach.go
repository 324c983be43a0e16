package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/pkg/logger"
)

// ErrMissingTopic rejects a teach-to-learn init without a topic. It is
// the only error this state machine surfaces to the client.
var ErrMissingTopic = errors.New("teach session requires a topic")

type TeachState int

const (
	StateAwaitingTopic TeachState = iota
	StateQuestioning
	StateComplete
)

// Turn statuses on the wire.
const (
	StatusQuestion = "question"
	StatusResponse = "response"
	StatusComplete = "complete"
)

// Turn is one assistant message in the teach dialogue.
type Turn struct {
	Status string `json:"status"`
	Score  int    `json:"understanding_score"`
	Text   string `json:"text"`
}

// Exchange is one entry in the conversation history.
type Exchange struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TeachSession runs the teach-to-learn loop for one connection: the
// student explains a topic, each final utterance is evaluated, and the
// next prompt pushes on the weakest point. Owned by the connection
// goroutine; not safe for concurrent use.
type TeachSession struct {
	evaluator *Evaluator
	gen       Generator

	state        TeachState
	topic        string
	notes        string
	history      []Exchange
	currentScore int
}

func NewTeachSession(evaluator *Evaluator, gen Generator) *TeachSession {
	return &TeachSession{
		evaluator: evaluator,
		gen:       gen,
		state:     StateAwaitingTopic,
	}
}

func (s *TeachSession) State() TeachState { return s.state }

func (s *TeachSession) CurrentScore() int { return s.currentScore }

func (s *TeachSession) History() []Exchange {
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// Start accepts the init message. A missing topic is the caller's
// mistake and leaves the session unstarted.
func (s *TeachSession) Start(ctx context.Context, topic, notes string) (*Turn, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrMissingTopic
	}
	if s.state != StateAwaitingTopic {
		return nil, fmt.Errorf("teach session already started")
	}

	s.topic = strings.TrimSpace(topic)
	s.notes = notes
	s.state = StateQuestioning

	question := s.openingQuestion(ctx)
	s.history = append(s.history, Exchange{Role: "assistant", Text: question})

	logger.Info("Teach session started", zap.String("topic", s.topic))

	return &Turn{Status: StatusQuestion, Text: question}, nil
}

func (s *TeachSession) openingQuestion(ctx context.Context) string {
	resp, err := s.gen.Generate(ctx, llm.Request{
		Prompt:    fmt.Sprintf("Topic: %s\n\nNotes:\n%s\n\nAsk the student one opening question that invites them to teach this topic back to you. Return only the question.", s.topic, s.notes),
		System:    "You are a curious student. The user will teach you a topic; you ask questions that test their understanding.",
		MaxTokens: 150,
	})
	if err != nil {
		return fmt.Sprintf("Let's start: can you explain %s to me in your own words?", s.topic)
	}
	if q := strings.TrimSpace(resp.Content); q != "" {
		return q
	}
	return fmt.Sprintf("Let's start: can you explain %s to me in your own words?", s.topic)
}

// HandleUtterance processes one student utterance. Interim fragments
// are dropped without a model call; each final utterance costs exactly
// one evaluation.
func (s *TeachSession) HandleUtterance(ctx context.Context, text string, isFinal bool) (*Turn, error) {
	if s.state == StateAwaitingTopic {
		return nil, ErrMissingTopic
	}
	if s.state == StateComplete {
		return &Turn{Status: StatusComplete, Score: s.currentScore, Text: "This session is complete. Start a new one to keep practicing."}, nil
	}
	if !isFinal || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	u := s.evaluator.Evaluate(ctx, s.reference(), text)
	s.currentScore = u.ScorePercent

	next := nextPrompt(u)
	s.history = append(s.history,
		Exchange{Role: "student", Text: text},
		Exchange{Role: "assistant", Text: next},
	)

	status := StatusResponse
	if u.Level == 5 {
		s.state = StateComplete
		status = StatusComplete
	}

	return &Turn{Status: status, Score: s.currentScore, Text: next}, nil
}

// Stop ends the session at any point and returns a closing summary
// carrying the final score.
func (s *TeachSession) Stop(_ context.Context) *Turn {
	s.state = StateComplete

	text := fmt.Sprintf("Great session on %s. Your final understanding score is %d%%.", s.topic, s.currentScore)
	if s.topic == "" {
		text = "Session ended before a topic was chosen."
	}
	s.history = append(s.history, Exchange{Role: "assistant", Text: text})

	return &Turn{Status: StatusComplete, Score: s.currentScore, Text: text}
}

// reference prefers the notes over the bare topic as evaluation
// grounding.
func (s *TeachSession) reference() string {
	if strings.TrimSpace(s.notes) != "" {
		return s.notes
	}
	return s.topic
}

// nextPrompt picks the line that keeps the dialogue moving: probe a
// gap first, then coach, then a generic continuation.
func nextPrompt(u *Understanding) string {
	if len(u.FollowUp) > 0 {
		return u.FollowUp[0]
	}
	if len(u.Suggestions) > 0 {
		return u.Suggestions[0]
	}
	return "Tell me more about that."
}
