// Package explain produces detailed explanations for concepts a
// student flags during a lecture and keeps the per-session flag
// history.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/jsonrepair"
	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/pkg/logger"
	"github.com/clarifai/backend/pkg/utils"
)

// Explanation is the student-facing payload. Every field is populated
// on every call; defaults fill in whatever the model omitted.
type Explanation struct {
	Explanation     string   `json:"explanation"`
	Examples        []string `json:"examples"`
	Misconceptions  []string `json:"misconceptions"`
	RelatedConcepts []string `json:"related_concepts"`
}

// Result wraps an explanation with its advisory provenance. Fallback
// is true when any field came from a default rather than the model.
type Result struct {
	Explanation Explanation `json:"explanation"`
	Fallback    bool        `json:"fallback"`
	Timestamp   string      `json:"timestamp"`
}

// Record is one flagged-concept history entry.
type Record struct {
	ConceptName string      `json:"concept_name"`
	Context     string      `json:"context"`
	Explanation Explanation `json:"explanation"`
	CreatedAt   string      `json:"created_at"`
}

// History is the append-only per-session flag log. The flag-concept
// socket appends while the process-audio socket reads, hence the lock.
type History struct {
	mu      sync.Mutex
	records []Record
}

func (h *History) Append(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
}

func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Generator is the completion surface this service needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Cache stores rendered explanations keyed by concept and context.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Graph records concept relations harvested from explanations.
type Graph interface {
	RelateConcepts(ctx context.Context, name string, related []string) error
}

type Service struct {
	gen   Generator
	cache Cache
	graph Graph
	now   func() time.Time
}

func NewService(gen Generator, cache Cache, graph Graph) *Service {
	return &Service{gen: gen, cache: cache, graph: graph, now: time.Now}
}

const explainSystem = `You are a patient teaching assistant. A student flagged a concept from a live lecture as confusing.
Return JSON with fields: explanation (string), examples (array of exactly 3 strings), misconceptions (array of strings), related_concepts (array of strings).`

// Explain generates an explanation for a flagged concept and appends
// exactly one record to the session history. It always succeeds; a
// misbehaving model only flips the Fallback marker.
func (s *Service) Explain(ctx context.Context, history *History, conceptName, contextText string) *Result {
	now := s.now().UTC().Format(time.RFC3339)

	explanation, fallback := s.generate(ctx, conceptName, contextText)

	if s.graph != nil && len(explanation.RelatedConcepts) > 0 && !fallback {
		if err := s.graph.RelateConcepts(ctx, conceptName, explanation.RelatedConcepts); err != nil {
			logger.Warn("Failed to record concept relations",
				zap.String("concept", conceptName),
				zap.Error(err),
			)
		}
	}

	history.Append(Record{
		ConceptName: conceptName,
		Context:     contextText,
		Explanation: explanation,
		CreatedAt:   now,
	})

	return &Result{
		Explanation: explanation,
		Fallback:    fallback,
		Timestamp:   now,
	}
}

func (s *Service) generate(ctx context.Context, conceptName, contextText string) (Explanation, bool) {
	cacheKey := utils.CacheKey("explain", conceptName, contextText)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			var e Explanation
			if err := json.Unmarshal([]byte(cached), &e); err == nil {
				logger.Debug("Explanation cache hit", zap.String("concept", conceptName))
				return e, false
			}
		}
	}

	prompt := fmt.Sprintf("Concept: %s\n\nLecture context:\n%s\n\nExplain this concept for a confused student.", conceptName, contextText)

	resp, err := s.gen.Generate(ctx, llm.Request{
		Prompt:    prompt,
		System:    explainSystem,
		WantsJSON: true,
		MaxTokens: 900,
	})
	if err != nil {
		logger.Warn("Explanation generation failed, using defaults",
			zap.String("concept", conceptName),
			zap.Error(err),
		)
		return defaultExplanation(conceptName), true
	}

	explanation, fallback := normalize(jsonrepair.Extract(resp.Content), conceptName)

	if s.cache != nil && !fallback {
		if data, err := json.Marshal(explanation); err == nil {
			s.cache.Set(ctx, cacheKey, string(data))
		}
	}

	return explanation, fallback
}

// normalize fills any missing field from the defaults and reports
// whether a substitution happened.
func normalize(v jsonrepair.Value, conceptName string) (Explanation, bool) {
	defaults := defaultExplanation(conceptName)
	fallback := false

	e := Explanation{}

	if text, ok := v.Get("explanation").(string); ok && strings.TrimSpace(text) != "" {
		e.Explanation = text
	} else {
		e.Explanation = defaults.Explanation
		fallback = true
	}

	if list := stringList(v.Get("examples")); len(list) > 0 {
		e.Examples = list
	} else {
		e.Examples = defaults.Examples
		fallback = true
	}

	if list := stringList(v.Get("misconceptions")); len(list) > 0 {
		e.Misconceptions = list
	} else {
		e.Misconceptions = defaults.Misconceptions
		fallback = true
	}

	if list := stringList(v.Get("related_concepts")); len(list) > 0 {
		e.RelatedConcepts = list
	} else {
		e.RelatedConcepts = defaults.RelatedConcepts
		fallback = true
	}

	return e, fallback
}

func defaultExplanation(conceptName string) Explanation {
	return Explanation{
		Explanation: fmt.Sprintf("%s is a key concept from this part of the lecture. A detailed explanation could not be generated right now; review the flagged passage and try again.", conceptName),
		Examples: []string{
			fmt.Sprintf("Look for %s in the lecture material covered just before you flagged it.", conceptName),
			fmt.Sprintf("Try restating %s in your own words to locate the gap.", conceptName),
			fmt.Sprintf("Compare %s with a concept you already understand well.", conceptName),
		},
		Misconceptions: []string{
			fmt.Sprintf("Assuming %s can be skipped without affecting later material.", conceptName),
		},
		RelatedConcepts: []string{"lecture fundamentals"},
	}
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
