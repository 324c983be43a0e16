package concepts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarifai/backend/internal/llm"
)

type fakeGen struct {
	replies []string
	err     error
	calls   int
	lastReq llm.Request
}

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return &llm.Response{Content: f.replies[idx]}, nil
}

const lectureTranscript = "Today we will discuss recursion. A recursive function calls itself. Every recursion needs a base case to terminate. Without a base case the stack overflows."

func TestProcessExtractsConcepts(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`[{"concept_name": "recursion", "text_snippet": "a function calls itself", "start_position": 30, "end_position": 62, "difficulty_level": 3, "is_current": false},
		  {"concept_name": "base case", "text_snippet": "needs a base case", "start_position": 70, "end_position": 100, "difficulty_level": 4, "is_current": true}]`,
	}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 2)
	assert.True(t, result.HasNewContent)
	require.NotNil(t, result.CurrentConcept)
	assert.Equal(t, "base case", result.CurrentConcept.Name)
	assert.True(t, gen.lastReq.WantsJSON)
}

func TestProcessCachesWhenTranscriptUnchanged(t *testing.T) {
	gen := &fakeGen{replies: []string{`[{"concept_name": "recursion", "is_current": true}]`}}
	tracker := NewTracker(gen)

	first := tracker.Process(context.Background(), lectureTranscript, "")
	require.Equal(t, 1, gen.calls)
	assert.True(t, first.HasNewContent)

	second := tracker.Process(context.Background(), lectureTranscript, lectureTranscript)
	assert.Equal(t, 1, gen.calls, "cached path must not call the model")
	assert.False(t, second.HasNewContent)
	assert.Equal(t, first.Concepts, second.Concepts)
}

func TestProcessGrowthTriggersExactlyOneCall(t *testing.T) {
	gen := &fakeGen{replies: []string{`[{"concept_name": "recursion"}]`}}
	tracker := NewTracker(gen)

	tracker.Process(context.Background(), lectureTranscript, "")
	grown := lectureTranscript + " Tail recursion avoids the extra frames."
	tracker.Process(context.Background(), grown, lectureTranscript)
	assert.Equal(t, 2, gen.calls)
}

func TestProcessFallbackOnGenerationError(t *testing.T) {
	gen := &fakeGen{err: errors.New("backend down")}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 1)

	c := result.Concepts[0]
	assert.Equal(t, "General Topic", c.Name)
	assert.Equal(t, 3, c.DifficultyLevel)
	assert.True(t, c.IsCurrent)
	assert.True(t, strings.HasSuffix(c.TextSnippet, "..."))
	assert.True(t, strings.HasPrefix(lectureTranscript, strings.TrimSuffix(c.TextSnippet, "...")))
	require.NotNil(t, result.CurrentConcept)
	assert.Equal(t, "General Topic", result.CurrentConcept.Name)
}

func TestProcessFallbackOnGarbageOutput(t *testing.T) {
	gen := &fakeGen{replies: []string{`I'm sorry, I can't produce JSON right now.`}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 1)
	assert.Equal(t, "General Topic", result.Concepts[0].Name)
}

func TestProcessPromotesWrappedList(t *testing.T) {
	gen := &fakeGen{replies: []string{`{"concepts": [{"concept_name": "stack frames", "difficulty_level": 5}]}`}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 1)
	assert.Equal(t, "stack frames", result.Concepts[0].Name)
}

func TestProcessCurrentConceptDefaultsToLast(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`[{"concept_name": "recursion"}, {"concept_name": "base case"}, {"concept_name": "stack overflow"}]`,
	}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.NotNil(t, result.CurrentConcept)
	assert.Equal(t, "stack overflow", result.CurrentConcept.Name)
}

func TestProcessCurrentConceptPrefersFirstMarked(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`[{"concept_name": "recursion", "is_current": true}, {"concept_name": "base case", "is_current": true}]`,
	}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.NotNil(t, result.CurrentConcept)
	assert.Equal(t, "recursion", result.CurrentConcept.Name)
}

func TestProcessClampsDifficultyAndPositions(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`[{"concept_name": "recursion", "difficulty_level": 9, "start_position": 5000, "end_position": -3},
		  {"concept_name": "base case", "difficulty_level": 0, "start_position": 40, "end_position": 10}]`,
	}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 2)

	first := result.Concepts[0]
	assert.Equal(t, 5, first.DifficultyLevel)
	assert.GreaterOrEqual(t, first.StartPosition, 0)
	assert.LessOrEqual(t, first.EndPosition, len(lectureTranscript))
	assert.LessOrEqual(t, first.StartPosition, first.EndPosition)

	second := result.Concepts[1]
	assert.Equal(t, 1, second.DifficultyLevel)
	assert.Equal(t, 10, second.StartPosition)
	assert.Equal(t, 40, second.EndPosition)
}

func TestProcessSkipsNamelessEntries(t *testing.T) {
	gen := &fakeGen{replies: []string{
		`[{"text_snippet": "no name here"}, {"concept_name": "recursion"}]`,
	}}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), lectureTranscript, "")
	require.Len(t, result.Concepts, 1)
	assert.Equal(t, "recursion", result.Concepts[0].Name)
}

func TestProcessEmptyTranscript(t *testing.T) {
	gen := &fakeGen{}
	tracker := NewTracker(gen)

	result := tracker.Process(context.Background(), "", "")
	assert.Equal(t, 0, gen.calls, "blank input must not reach the model")

	require.Len(t, result.Concepts, 1)
	c := result.Concepts[0]
	assert.Equal(t, "General Topic", c.Name)
	assert.Equal(t, 3, c.DifficultyLevel)
	assert.True(t, c.IsCurrent)
	require.NotNil(t, result.CurrentConcept)
	assert.Equal(t, "General Topic", result.CurrentConcept.Name)
	assert.False(t, result.HasNewContent)
}

func TestFallbackCurrentConceptAliasesSlice(t *testing.T) {
	result := fallbackResult(lectureTranscript)
	require.Len(t, result.Concepts, 1)
	assert.Same(t, &result.Concepts[0], result.CurrentConcept)
}
