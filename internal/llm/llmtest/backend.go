// Package llmtest provides a scripted in-memory Backend for tests.
package llmtest

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Backend replays a scripted sequence of completion responses. When
// the script runs out it repeats the last entry. Safe for the
// single-goroutine-per-session model and for parallel tests.
type Backend struct {
	mu        sync.Mutex
	script    []Reply
	calls     int
	requests  []openai.ChatCompletionRequest
	embedding []float32
}

// Reply is one scripted completion outcome.
type Reply struct {
	Content string
	Err     error
}

func New(replies ...Reply) *Backend {
	return &Backend{script: replies}
}

// Respond appends a successful reply to the script.
func (b *Backend) Respond(content string) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, Reply{Content: content})
	return b
}

// Fail appends an error reply to the script.
func (b *Backend) Fail(err error) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, Reply{Err: err})
	return b
}

// SetEmbedding fixes the vector returned by CreateEmbeddings.
func (b *Backend) SetEmbedding(v []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.embedding = v
}

// Calls reports how many completions have been requested.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// LastRequest returns the most recent completion request, or a zero
// value when none was made.
func (b *Backend) LastRequest() openai.ChatCompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return openai.ChatCompletionRequest{}
	}
	return b.requests[len(b.requests)-1]
}

func (b *Backend) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)
	idx := b.calls
	b.calls++

	if len(b.script) == 0 {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "{}"}}},
		}, nil
	}
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}

	reply := b.script[idx]
	if reply.Err != nil {
		return openai.ChatCompletionResponse{}, reply.Err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply.Content}}},
		Usage: openai.Usage{
			PromptTokens:     10,
			CompletionTokens: len(reply.Content) / 4,
			TotalTokens:      10 + len(reply.Content)/4,
		},
	}, nil
}

func (b *Backend) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vec := b.embedding
	if vec == nil {
		vec = []float32{1, 0, 0}
	}
	return openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: vec}},
	}, nil
}
