// Package evaluation scores a student's spoken explanation against
// lecture content and drives the teach-to-learn dialogue.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/jsonrepair"
	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/pkg/logger"
	"github.com/clarifai/backend/pkg/utils"
)

// Understanding is one evaluation of a student explanation. Level is
// always in 1..5 and ScorePercent is always Level*20.
type Understanding struct {
	Level          int      `json:"understanding_level"`
	AccuratePoints []string `json:"accurate_points"`
	Gaps           []string `json:"gaps"`
	FollowUp       []string `json:"follow_up_questions"`
	Suggestions    []string `json:"improvement_suggestions"`
	ScorePercent   int      `json:"understanding_score"`
	Similarity     float64  `json:"similarity,omitempty"`
}

// Generator is the completion surface the evaluator needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Embedder is optional; when present the evaluator attaches a cosine
// similarity between the reference and the explanation as an advisory
// signal.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Cache stores evaluations keyed by reference+explanation so a
// repeated submission skips the model call.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type Evaluator struct {
	gen      Generator
	embedder Embedder
	cache    Cache
}

func NewEvaluator(gen Generator, embedder Embedder, cache Cache) *Evaluator {
	return &Evaluator{gen: gen, embedder: embedder, cache: cache}
}

const evaluateSystem = `You assess how well a student understood lecture material from their spoken explanation.
Return JSON with fields: understanding_level (integer 1-5), accurate_points (array of strings), gaps (array of strings), follow_up_questions (array of strings), improvement_suggestions (array of strings).`

// Evaluate scores userExplanation against referenceContent. It is
// pure with respect to session state and never fails: a misbehaving
// model degrades to neutral defaults.
func (e *Evaluator) Evaluate(ctx context.Context, referenceContent, userExplanation string) *Understanding {
	cacheKey := utils.CacheKey("evaluate", referenceContent, userExplanation)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, cacheKey); ok {
			var u Understanding
			if err := json.Unmarshal([]byte(cached), &u); err == nil {
				logger.Debug("Evaluation cache hit")
				return &u
			}
		}
	}

	prompt := fmt.Sprintf("Lecture content:\n%s\n\nStudent's explanation:\n%s\n\nAssess the student's understanding.", referenceContent, userExplanation)

	var v jsonrepair.Value
	resp, err := e.gen.Generate(ctx, llm.Request{
		Prompt:    prompt,
		System:    evaluateSystem,
		WantsJSON: true,
		MaxTokens: 700,
	})
	if err != nil {
		logger.Warn("Understanding evaluation failed, using defaults", zap.Error(err))
		v = jsonrepair.Extract("")
	} else {
		v = jsonrepair.Extract(resp.Content)
	}

	u := normalizeUnderstanding(v)

	if e.embedder != nil && referenceContent != "" && userExplanation != "" {
		if sim, err := e.similarity(ctx, referenceContent, userExplanation); err == nil {
			u.Similarity = sim
		} else {
			logger.Debug("Similarity signal unavailable", zap.Error(err))
		}
	}

	// Defaults from a failed generation are not worth pinning in the
	// cache.
	if err == nil && e.cache != nil {
		if data, merr := json.Marshal(u); merr == nil {
			e.cache.Set(ctx, cacheKey, string(data))
		}
	}

	return u
}

func normalizeUnderstanding(v jsonrepair.Value) *Understanding {
	u := &Understanding{
		Level:          3,
		AccuratePoints: []string{},
		Gaps:           []string{"Unable to identify specific gaps from the explanation."},
		FollowUp:       []string{"Can you explain the main idea again in your own words?"},
		Suggestions:    []string{"Revisit the lecture material and try explaining it step by step."},
	}

	if level, ok := asInt(v.Get("understanding_level")); ok {
		u.Level = clampLevel(level)
	}
	if list := stringList(v.Get("accurate_points")); list != nil {
		u.AccuratePoints = list
	}
	if list := stringList(v.Get("gaps")); list != nil {
		u.Gaps = list
	}
	if list := stringList(v.Get("follow_up_questions")); list != nil {
		u.FollowUp = list
	}
	if list := stringList(v.Get("improvement_suggestions")); list != nil {
		u.Suggestions = list
	}

	u.ScorePercent = u.Level * 20
	return u
}

func (e *Evaluator) similarity(ctx context.Context, reference, explanation string) (float64, error) {
	ref, err := e.embedder.GenerateEmbedding(ctx, reference)
	if err != nil {
		return 0, err
	}
	exp, err := e.embedder.GenerateEmbedding(ctx, explanation)
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(ref, exp), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
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
