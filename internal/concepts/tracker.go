package concepts

import (
	"context"
	"fmt"
	"strings"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/jsonrepair"
	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/pkg/logger"
)

const (
	fallbackName      = "General Topic"
	fallbackSnippet   = 100
	tailSentences     = 6
	tailFallbackChars = 600
)

// Generator is the completion surface the tracker needs. *llm.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Tracker holds the incremental extraction state for one session. Not
// safe for concurrent use; the owning connection goroutine serializes
// calls.
type Tracker struct {
	gen        Generator
	lastLen    int
	lastResult *ExtractionResult
}

func NewTracker(gen Generator) *Tracker {
	return &Tracker{gen: gen}
}

const extractionSystem = `You analyze live lecture transcripts and identify concepts a student might find difficult.
Return a JSON array of objects with fields: concept_name, text_snippet, start_position, end_position, difficulty_level (1-5), is_current (true for the concept being discussed right now).`

// Process analyzes the transcript and returns the concepts found so
// far. When the transcript has not grown past previous, the cached
// result is returned without a model call. Process never fails: any
// generation or parse problem degrades to a single fallback concept.
func (t *Tracker) Process(ctx context.Context, transcript, previous string) ExtractionResult {
	hasNew := len(transcript) > len(previous)
	if !hasNew && t.lastResult != nil {
		cached := *t.lastResult
		cached.HasNewContent = false
		return cached
	}

	// A blank transcript has nothing for the model to read, but the
	// caller still gets the single fallback concept.
	if strings.TrimSpace(transcript) == "" {
		result := fallbackResult(transcript)
		result.HasNewContent = false
		return result
	}

	result := t.extract(ctx, transcript)
	result.HasNewContent = hasNew

	t.lastLen = len(transcript)
	t.lastResult = &result
	return result
}

func (t *Tracker) extract(ctx context.Context, transcript string) ExtractionResult {
	prompt := buildExtractionPrompt(transcript)

	resp, err := t.gen.Generate(ctx, llm.Request{
		Prompt:    prompt,
		System:    extractionSystem,
		WantsJSON: true,
		MaxTokens: 800,
	})
	if err != nil {
		logger.Warn("Concept extraction failed, using fallback",
			zap.Error(err),
			zap.Int("transcript_len", len(transcript)),
		)
		return fallbackResult(transcript)
	}

	items, ok := jsonrepair.PromoteConceptList(jsonrepair.Extract(resp.Content))
	if !ok {
		logger.Warn("Concept extraction returned no usable list",
			zap.Int("response_len", len(resp.Content)),
		)
		return fallbackResult(transcript)
	}

	concepts := make([]Concept, 0, len(items))
	for _, item := range items {
		c, ok := normalizeConcept(item, len(transcript))
		if !ok {
			continue
		}
		concepts = append(concepts, c)
	}
	if len(concepts) == 0 {
		return fallbackResult(transcript)
	}

	return ExtractionResult{
		Concepts:       concepts,
		CurrentConcept: currentConcept(concepts),
	}
}

// buildExtractionPrompt weights the tail of the transcript: the model
// sees the full text for context but is told to focus on the most
// recent sentences.
func buildExtractionPrompt(transcript string) string {
	tail := tailWindow(transcript)
	return fmt.Sprintf("Transcript so far:\n%s\n\nMost recent passage (focus here):\n%s\n\nReturn the JSON array of concepts.", transcript, tail)
}

func tailWindow(transcript string) string {
	doc, err := prose.NewDocument(transcript,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		sents := doc.Sentences()
		if len(sents) > 0 {
			start := len(sents) - tailSentences
			if start < 0 {
				start = 0
			}
			parts := make([]string, 0, len(sents)-start)
			for _, s := range sents[start:] {
				parts = append(parts, s.Text)
			}
			return strings.Join(parts, " ")
		}
	}
	// Segmentation failed; fall back to a character window.
	if len(transcript) > tailFallbackChars {
		return transcript[len(transcript)-tailFallbackChars:]
	}
	return transcript
}

func normalizeConcept(item map[string]any, transcriptLen int) (Concept, bool) {
	name := firstString(item, "concept_name", "name", "concept")
	if strings.TrimSpace(name) == "" {
		return Concept{}, false
	}

	c := Concept{
		Name:            strings.TrimSpace(name),
		TextSnippet:     firstString(item, "text_snippet", "snippet", "text", "context"),
		DifficultyLevel: clampDifficulty(firstNumber(item, 3, "difficulty_level", "difficulty")),
		IsCurrent:       asBool(item["is_current"]),
	}

	start := firstNumber(item, 0, "start_position", "start")
	end := firstNumber(item, 0, "end_position", "end")
	c.StartPosition, c.EndPosition = clampSpan(start, end, transcriptLen)

	return c, true
}

// clampSpan bounds both offsets to the transcript and swaps an
// inverted pair. Offsets are advisory and never used for slicing.
func clampSpan(start, end, max int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if start > max {
		start = max
	}
	if end > max {
		end = max
	}
	if start > end {
		start, end = end, start
	}
	return start, end
}

func clampDifficulty(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}

// currentConcept picks the first concept marked current, else the
// last one in appearance order.
func currentConcept(concepts []Concept) *Concept {
	if len(concepts) == 0 {
		return nil
	}
	for i := range concepts {
		if concepts[i].IsCurrent {
			return &concepts[i]
		}
	}
	return &concepts[len(concepts)-1]
}

func fallbackResult(transcript string) ExtractionResult {
	snippet := transcript
	if len(snippet) > fallbackSnippet {
		snippet = snippet[:fallbackSnippet]
	}
	end := len(snippet)
	c := Concept{
		Name:            fallbackName,
		TextSnippet:     snippet + "...",
		StartPosition:   0,
		EndPosition:     end,
		DifficultyLevel: 3,
		IsCurrent:       true,
	}
	result := ExtractionResult{Concepts: []Concept{c}}
	result.CurrentConcept = &result.Concepts[0]
	return result
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(item map[string]any, fallback int, keys ...string) int {
	for _, key := range keys {
		switch n := item[key].(type) {
		case float64:
			return int(n)
		case int:
			return n
		case string:
			var v int
			if _, err := fmt.Sscanf(n, "%d", &v); err == nil {
				return v
			}
		}
	}
	return fallback
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
