package evaluation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarifai/backend/internal/llm"
)

type fakeGen struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeGen) Generate(_ context.Context, _ llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return &llm.Response{Content: f.replies[idx]}, nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, errors.New("no vector scripted")
}

func evalReply(level int) string {
	return fmt.Sprintf(`{
		"understanding_level": %d,
		"accurate_points": ["identified the base case"],
		"gaps": ["did not mention stack growth"],
		"follow_up_questions": ["what happens without a base case?"],
		"improvement_suggestions": ["walk through a concrete example"]
	}`, level)
}

func TestEvaluateScoreMapping(t *testing.T) {
	for level := 1; level <= 5; level++ {
		t.Run(fmt.Sprintf("level_%d", level), func(t *testing.T) {
			ev := NewEvaluator(&fakeGen{replies: []string{evalReply(level)}}, nil, nil)
			u := ev.Evaluate(context.Background(), "lecture on recursion", "my explanation")
			assert.Equal(t, level, u.Level)
			assert.Equal(t, level*20, u.ScorePercent)
		})
	}
}

func TestEvaluateClampsLevel(t *testing.T) {
	ev := NewEvaluator(&fakeGen{replies: []string{`{"understanding_level": 11}`}}, nil, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")
	assert.Equal(t, 5, u.Level)
	assert.Equal(t, 100, u.ScorePercent)

	ev = NewEvaluator(&fakeGen{replies: []string{`{"understanding_level": -2}`}}, nil, nil)
	u = ev.Evaluate(context.Background(), "ref", "exp")
	assert.Equal(t, 1, u.Level)
	assert.Equal(t, 20, u.ScorePercent)
}

func TestEvaluateDefaultsOnGenerationError(t *testing.T) {
	ev := NewEvaluator(&fakeGen{err: errors.New("backend down")}, nil, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")

	assert.Equal(t, 3, u.Level)
	assert.Equal(t, 60, u.ScorePercent)
	assert.NotEmpty(t, u.Gaps)
	assert.NotEmpty(t, u.FollowUp)
	assert.NotEmpty(t, u.Suggestions)
}

func TestEvaluateDefaultsOnGarbageOutput(t *testing.T) {
	ev := NewEvaluator(&fakeGen{replies: []string{"sorry, no json today"}}, nil, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")

	assert.Equal(t, 3, u.Level)
	assert.NotEmpty(t, u.Gaps)
}

func TestEvaluatePartialFieldsKeepWhatParses(t *testing.T) {
	ev := NewEvaluator(&fakeGen{replies: []string{`{"understanding_level": 4, "accurate_points": ["good definition"]}`}}, nil, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")

	assert.Equal(t, 4, u.Level)
	assert.Equal(t, []string{"good definition"}, u.AccuratePoints)
	assert.NotEmpty(t, u.Gaps, "missing gaps are defaulted")
}

func TestEvaluateAttachesSimilarity(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"ref": {1, 0},
		"exp": {1, 0},
	}}
	ev := NewEvaluator(&fakeGen{replies: []string{evalReply(4)}}, embedder, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")
	assert.InDelta(t, 1.0, u.Similarity, 0.001)
}

func TestEvaluateSimilarityFailureIsAdvisory(t *testing.T) {
	ev := NewEvaluator(&fakeGen{replies: []string{evalReply(4)}}, &fakeEmbedder{}, nil)
	u := ev.Evaluate(context.Background(), "ref", "exp")
	assert.Equal(t, 4, u.Level)
	assert.Zero(t, u.Similarity)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 0.001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.001)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "mismatched lengths")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
}

type memCache struct {
	data map[string]string
}

func (m *memCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key, value string) { m.data[key] = value }

func TestEvaluateUsesCache(t *testing.T) {
	gen := &fakeGen{replies: []string{evalReply(4)}}
	cache := &memCache{data: map[string]string{}}
	ev := NewEvaluator(gen, nil, cache)

	first := ev.Evaluate(context.Background(), "ref", "exp")
	second := ev.Evaluate(context.Background(), "ref", "exp")

	assert.Equal(t, 1, gen.calls, "second evaluation served from cache")
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.ScorePercent, second.ScorePercent)
}

func TestEvaluateDoesNotCacheFailureDefaults(t *testing.T) {
	cache := &memCache{data: map[string]string{}}
	ev := NewEvaluator(&fakeGen{err: errors.New("backend down")}, nil, cache)

	ev.Evaluate(context.Background(), "ref", "exp")
	assert.Empty(t, cache.data)
}

func TestEvaluateIsPureAcrossCalls(t *testing.T) {
	gen := &fakeGen{replies: []string{evalReply(2), evalReply(2)}}
	ev := NewEvaluator(gen, nil, nil)

	first := ev.Evaluate(context.Background(), "ref", "exp")
	second := ev.Evaluate(context.Background(), "ref", "exp")
	require.Equal(t, first.Level, second.Level)
	assert.Equal(t, 2, gen.calls, "no caching inside Evaluate")
}
