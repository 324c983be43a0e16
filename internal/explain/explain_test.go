package explain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarifai/backend/internal/llm"
)

type fakeGen struct {
	reply string
	err   error
	calls int
}

func (f *fakeGen) Generate(_ context.Context, _ llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply}, nil
}

type memCache struct {
	data map[string]string
	hits int
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (m *memCache) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.data[key]
	if ok {
		m.hits++
	}
	return v, ok
}

func (m *memCache) Set(_ context.Context, key, value string) { m.data[key] = value }

type fakeGraph struct {
	name    string
	related []string
	calls   int
	err     error
}

func (g *fakeGraph) RelateConcepts(_ context.Context, name string, related []string) error {
	g.calls++
	g.name = name
	g.related = related
	return g.err
}

const goodReply = `{
	"explanation": "Recursion is when a function calls itself to solve smaller instances of the same problem.",
	"examples": ["factorial", "tree traversal", "merge sort"],
	"misconceptions": ["recursion is always slower than loops"],
	"related_concepts": ["base case", "call stack"]
}`

func newService(gen Generator, cache Cache, graph Graph) *Service {
	s := NewService(gen, cache, graph)
	s.now = func() time.Time { return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC) }
	return s
}

func TestExplainReturnsCompleteResult(t *testing.T) {
	gen := &fakeGen{reply: goodReply}
	svc := newService(gen, nil, nil)
	history := &History{}

	result := svc.Explain(context.Background(), history, "recursion", "the lecture was about recursion")

	assert.False(t, result.Fallback)
	assert.Equal(t, "2025-03-14T10:30:00Z", result.Timestamp)
	assert.NotEmpty(t, result.Explanation.Explanation)
	assert.Len(t, result.Explanation.Examples, 3)
	assert.NotEmpty(t, result.Explanation.Misconceptions)
	assert.Equal(t, []string{"base case", "call stack"}, result.Explanation.RelatedConcepts)
}

func TestExplainAppendsExactlyOneRecordPerCall(t *testing.T) {
	gen := &fakeGen{reply: goodReply}
	svc := newService(gen, nil, nil)
	history := &History{}

	svc.Explain(context.Background(), history, "recursion", "ctx one")
	require.Equal(t, 1, history.Len())

	svc.Explain(context.Background(), history, "recursion", "ctx one")
	require.Equal(t, 2, history.Len())

	records := history.Records()
	assert.Equal(t, "recursion", records[0].ConceptName)
	assert.Equal(t, "ctx one", records[0].Context)
	assert.Equal(t, "2025-03-14T10:30:00Z", records[0].CreatedAt)
}

func TestExplainRecordsAppendedEvenOnFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("model unavailable")}
	svc := newService(gen, nil, nil)
	history := &History{}

	result := svc.Explain(context.Background(), history, "pointers", "lecture context")

	assert.True(t, result.Fallback)
	require.Equal(t, 1, history.Len())
	assert.Equal(t, result.Explanation, history.Records()[0].Explanation)
}

func TestExplainFieldDefaults(t *testing.T) {
	// Model returned prose in the explanation field but dropped the lists.
	gen := &fakeGen{reply: `{"explanation": "pointers hold addresses"}`}
	svc := newService(gen, nil, nil)
	history := &History{}

	result := svc.Explain(context.Background(), history, "pointers", "c")

	assert.True(t, result.Fallback)
	assert.Equal(t, "pointers hold addresses", result.Explanation.Explanation)
	assert.Len(t, result.Explanation.Examples, 3)
	assert.NotEmpty(t, result.Explanation.Misconceptions)
	assert.NotEmpty(t, result.Explanation.RelatedConcepts)
}

func TestExplainGarbageOutputYieldsDefaults(t *testing.T) {
	gen := &fakeGen{reply: "I am unable to comply."}
	svc := newService(gen, nil, nil)
	history := &History{}

	result := svc.Explain(context.Background(), history, "closures", "c")

	assert.True(t, result.Fallback)
	assert.Contains(t, result.Explanation.Explanation, "closures")
	assert.Len(t, result.Explanation.Examples, 3)
}

func TestExplainCacheSkipsModelOnSecondCall(t *testing.T) {
	gen := &fakeGen{reply: goodReply}
	cache := newMemCache()
	svc := newService(gen, cache, nil)
	history := &History{}

	svc.Explain(context.Background(), history, "recursion", "same context")
	require.Equal(t, 1, gen.calls)

	result := svc.Explain(context.Background(), history, "recursion", "same context")
	assert.Equal(t, 1, gen.calls, "cache hit must not call the model")
	assert.Equal(t, 1, cache.hits)
	assert.False(t, result.Fallback)
	assert.Equal(t, 2, history.Len(), "cached calls still append a record")
}

func TestExplainFallbackNotCached(t *testing.T) {
	gen := &fakeGen{reply: "garbage"}
	cache := newMemCache()
	svc := newService(gen, cache, nil)
	history := &History{}

	svc.Explain(context.Background(), history, "recursion", "ctx")
	assert.Empty(t, cache.data)
}

func TestExplainFeedsGraph(t *testing.T) {
	gen := &fakeGen{reply: goodReply}
	graph := &fakeGraph{}
	svc := newService(gen, nil, graph)
	history := &History{}

	svc.Explain(context.Background(), history, "recursion", "ctx")

	assert.Equal(t, 1, graph.calls)
	assert.Equal(t, "recursion", graph.name)
	assert.Equal(t, []string{"base case", "call stack"}, graph.related)
}

func TestExplainGraphFailureIsBestEffort(t *testing.T) {
	gen := &fakeGen{reply: goodReply}
	graph := &fakeGraph{err: errors.New("neo4j down")}
	svc := newService(gen, nil, graph)
	history := &History{}

	result := svc.Explain(context.Background(), history, "recursion", "ctx")

	assert.False(t, result.Fallback)
	assert.Equal(t, 1, history.Len())
}
