package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// teachGen scripts the opening question followed by evaluation replies.
func teachGen(levels ...int) *fakeGen {
	replies := []string{"What is recursion, in your own words?"}
	for _, level := range levels {
		replies = append(replies, evalReply(level))
	}
	return &fakeGen{replies: replies}
}

func newTeach(gen *fakeGen) *TeachSession {
	return NewTeachSession(NewEvaluator(gen, nil, nil), gen)
}

func TestTeachStartRequiresTopic(t *testing.T) {
	s := newTeach(teachGen())

	_, err := s.Start(context.Background(), "   ", "notes")
	require.ErrorIs(t, err, ErrMissingTopic)
	assert.Equal(t, StateAwaitingTopic, s.State())
}

func TestTeachStartAsksOpeningQuestion(t *testing.T) {
	s := newTeach(teachGen())

	turn, err := s.Start(context.Background(), "recursion", "lecture notes on recursion")
	require.NoError(t, err)
	assert.Equal(t, StatusQuestion, turn.Status)
	assert.NotEmpty(t, turn.Text)
	assert.Equal(t, StateQuestioning, s.State())
	require.Len(t, s.History(), 1)
	assert.Equal(t, "assistant", s.History()[0].Role)
}

func TestTeachUtteranceBeforeStartRejected(t *testing.T) {
	s := newTeach(teachGen())
	_, err := s.HandleUtterance(context.Background(), "recursion is when...", true)
	assert.ErrorIs(t, err, ErrMissingTopic)
}

func TestTeachInterimUtterancesIgnored(t *testing.T) {
	gen := teachGen(3)
	s := newTeach(gen)
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)
	callsAfterStart := gen.calls

	turn, err := s.HandleUtterance(context.Background(), "recursion is", false)
	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Equal(t, callsAfterStart, gen.calls, "interim text must not trigger evaluation")
}

func TestTeachTurnScoresAndPrompts(t *testing.T) {
	s := newTeach(teachGen(3))
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)

	turn, err := s.HandleUtterance(context.Background(), "recursion is a function calling itself", true)
	require.NoError(t, err)
	assert.Equal(t, StatusResponse, turn.Status)
	assert.Equal(t, 60, turn.Score)
	assert.Equal(t, "what happens without a base case?", turn.Text, "follow-up question wins over suggestion")
	assert.Equal(t, 60, s.CurrentScore())
}

func TestTeachPromptPriority(t *testing.T) {
	u := &Understanding{
		FollowUp:    []string{"follow-up wins"},
		Suggestions: []string{"suggestion loses"},
	}
	assert.Equal(t, "follow-up wins", nextPrompt(u))

	u.FollowUp = nil
	assert.Equal(t, "suggestion loses", nextPrompt(u))

	u.Suggestions = nil
	assert.Equal(t, "Tell me more about that.", nextPrompt(u))
}

func TestTeachCompletesOnLevelFive(t *testing.T) {
	s := newTeach(teachGen(2, 3, 5))
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)

	turn, err := s.HandleUtterance(context.Background(), "first try", true)
	require.NoError(t, err)
	assert.Equal(t, StatusResponse, turn.Status)

	turn, err = s.HandleUtterance(context.Background(), "second try", true)
	require.NoError(t, err)
	assert.Equal(t, StatusResponse, turn.Status)

	turn, err = s.HandleUtterance(context.Background(), "a complete and correct explanation", true)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, turn.Status)
	assert.Equal(t, 100, turn.Score)
	assert.NotEmpty(t, turn.Text, "completing turn still carries the next prompt text")
	assert.Equal(t, StateComplete, s.State())
}

func TestTeachStopAtAnyPoint(t *testing.T) {
	s := newTeach(teachGen(4))
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)

	_, err = s.HandleUtterance(context.Background(), "an explanation", true)
	require.NoError(t, err)

	turn := s.Stop(context.Background())
	assert.Equal(t, StatusComplete, turn.Status)
	assert.Equal(t, 80, turn.Score)
	assert.Contains(t, turn.Text, "80%")
	assert.Equal(t, StateComplete, s.State())
}

func TestTeachUtteranceAfterCompleteIsTerminal(t *testing.T) {
	s := newTeach(teachGen(5))
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)

	_, err = s.HandleUtterance(context.Background(), "perfect explanation", true)
	require.NoError(t, err)
	require.Equal(t, StateComplete, s.State())

	turn, err := s.HandleUtterance(context.Background(), "more words", true)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, turn.Status)
	assert.Equal(t, 100, turn.Score)
}

func TestTeachHistoryGrowsPerExchange(t *testing.T) {
	s := newTeach(teachGen(3, 4))
	_, err := s.Start(context.Background(), "recursion", "notes")
	require.NoError(t, err)
	require.Len(t, s.History(), 1)

	_, err = s.HandleUtterance(context.Background(), "first explanation", true)
	require.NoError(t, err)
	assert.Len(t, s.History(), 3)

	_, err = s.HandleUtterance(context.Background(), "second explanation", true)
	require.NoError(t, err)
	assert.Len(t, s.History(), 5)
}
