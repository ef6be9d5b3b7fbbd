// Package ai provides the answer synthesis chain and the embedding
// backend: OpenAI-compatible providers (a local runtime or a hosted API)
// ordered by preference, with a deterministic template renderer as the
// terminal fallback that cannot fail.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Config holds one provider's configuration.
type Config struct {
	// Name identifies the provider in logs, metrics, and the llm_used
	// field of run results ("primary", "secondary").
	Name           string
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	MaxRetries     int
	Timeout        time.Duration
}

// Provider is one OpenAI-compatible chat/embedding backend. Local
// runtimes (Ollama, vLLM) and hosted APIs both speak this protocol.
type Provider struct {
	client *openai.Client
	config *Config
}

// NewProvider creates a provider for the given endpoint.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Name == "" {
		cfg.Name = "provider"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name returns the provider's chain name.
func (p *Provider) Name() string {
	return p.config.Name
}

// Message represents a chat message.
type Message struct {
	Role    string
	Content string
}

// Chat performs a chat completion.
func (p *Provider) Chat(ctx context.Context, messages []Message) (string, error) {
	var result string
	err := p.doWithRetry(ctx, func() error {
		llmMessages := make([]openai.ChatCompletionMessage, len(messages))
		for i, msg := range messages {
			llmMessages[i] = openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.config.ChatModel,
			Messages: llmMessages,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion via %s: %w", p.config.Name, err)
	}
	return result, nil
}

// Embedding generates an embedding vector for the given text.
func (p *Provider) Embedding(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(p.config.EmbeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		result = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding via %s: %w", p.config.Name, err)
	}
	return result, nil
}

// Validate checks connectivity by listing the endpoint's models. Used by
// the health endpoint; a failing provider degrades the chain, it does not
// block startup.
func (p *Provider) Validate(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("provider %s unreachable: %w", p.config.Name, err)
	}
	return nil
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("provider request failed, retrying",
					slog.String("provider", p.config.Name),
					slog.Int("attempt", attempt+1),
					slog.Duration("wait_time", waitTime),
					slog.String("error", err.Error()))
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}
