package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig represents the configuration for the chunk embedder.
type EmbedderConfig struct {
	Model     string
	MaxTokens int    // rough cap, applied as 4 characters per token
	BaseURL   string // Ollama server URL
}

// Embedder turns chunk text into vectors using an Ollama embedding model.
type Embedder struct {
	config EmbedderConfig
	embed  *ollama.LLM
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		embed:  emb,
	}, nil
}

func (e *Embedder) Config() EmbedderConfig {
	return e.config
}

// CreateEmbedding returns one vector per input text, in order.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	limit := e.config.MaxTokens * 4
	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = truncateRunes(text, limit)
	}

	embeddings, err := e.embed.CreateEmbedding(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return embeddings, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
