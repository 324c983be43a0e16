package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/metrics"
	"github.com/clarifai/backend/pkg/circuitbreaker"
	"github.com/clarifai/backend/pkg/logger"
	"github.com/clarifai/backend/pkg/retry"
)

// jsonInstruction is appended to the system prompt when the caller
// wants machine-readable output. The model still gets it wrong often
// enough that every caller runs the result through jsonrepair.
const jsonInstruction = "Respond with valid JSON only. No markdown, no code fences, no prose outside the JSON."

// Backend is the slice of the OpenAI client this package uses.
// *openai.Client satisfies it; tests inject a scripted fake.
type Backend interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type Client struct {
	backend        Backend
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type Request struct {
	Prompt      string
	System      string
	WantsJSON   bool
	Temperature float32
	MaxTokens   int
}

type Response struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	return NewClientWithBackend(openai.NewClient(apiKey), model, embeddingModel, temperature, maxTokens, timeoutSec)
}

func NewClientWithBackend(backend Backend, model, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		backend:        backend,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// Generate runs a single completion and returns the raw model text.
// It never parses the output. Every failure, whether transport, auth,
// rate limit or breaker, comes back as a *GenerationError.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	system := req.System
	if req.WantsJSON {
		if temperature > 0.2 {
			temperature = 0.2
		}
		if system == "" {
			system = jsonInstruction
		} else {
			system = system + "\n\n" + jsonInstruction
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	var result *Response

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.backend.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("chat completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("chat completion: empty choices")
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &Response{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, &GenerationError{Op: "generate", Cause: err}
	}

	metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(result.Usage.TotalTokens))

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.backend.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding: empty response")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, &GenerationError{Op: "embedding", Cause: err}
	}

	return embedding, nil
}
