// Package notes turns a finished lecture transcript into organized
// study notes and imports external HTML material as reference notes.
package notes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/jsonrepair"
	"github.com/clarifai/backend/internal/llm"
	"github.com/clarifai/backend/pkg/logger"
	"github.com/clarifai/backend/pkg/utils"
)

// Organized is the title/content pair stored with a lecture.
type Organized struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Generator is the completion surface the service needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Cache stores rendered notes keyed by transcript hash.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type Service struct {
	gen   Generator
	cache Cache
}

func NewService(gen Generator, cache Cache) *Service {
	return &Service{gen: gen, cache: cache}
}

const notesSystem = `You turn raw lecture transcripts into organized study notes.
Return JSON with fields: title (a short descriptive lecture title) and content (well-structured markdown notes with headings and bullet points).`

// GenerateOrganizedNotes produces a title and markdown notes for a
// full transcript. It never fails: when generation breaks down the
// raw transcript itself becomes the notes body.
func (s *Service) GenerateOrganizedNotes(ctx context.Context, transcript string) *Organized {
	if strings.TrimSpace(transcript) == "" {
		return &Organized{Title: "Untitled Lecture", Content: ""}
	}

	cacheKey := utils.CacheKey("notes", transcript)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			if o := decodeOrganized(cached); o != nil {
				return o
			}
		}
	}

	resp, err := s.gen.Generate(ctx, llm.Request{
		Prompt:    fmt.Sprintf("Organize this lecture transcript into study notes:\n\n%s", transcript),
		System:    notesSystem,
		WantsJSON: true,
		MaxTokens: 1500,
	})
	if err != nil {
		logger.Warn("Notes generation failed, storing raw transcript", zap.Error(err))
		return fallbackNotes(transcript)
	}

	v := jsonrepair.Extract(resp.Content)
	title, _ := v.Get("title").(string)
	content, _ := v.Get("content").(string)

	if strings.TrimSpace(content) == "" {
		return fallbackNotes(transcript)
	}
	if strings.TrimSpace(title) == "" {
		title = deriveTitle(transcript)
	}

	organized := &Organized{Title: strings.TrimSpace(title), Content: content}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, fmt.Sprintf("%s\x1e%s", organized.Title, organized.Content))
	}

	return organized
}

func decodeOrganized(cached string) *Organized {
	parts := strings.SplitN(cached, "\x1e", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	return &Organized{Title: parts[0], Content: parts[1]}
}

func fallbackNotes(transcript string) *Organized {
	return &Organized{
		Title:   deriveTitle(transcript),
		Content: "## Lecture Transcript\n\n" + transcript,
	}
}

// deriveTitle takes the first handful of words from the transcript.
func deriveTitle(transcript string) string {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return "Untitled Lecture"
	}
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
