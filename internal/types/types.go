package types

import (
	"context"

	"github.com/xhad/readaloud/internal/models"
)

// Core interfaces
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.Document, error)
}

type SentenceDetector interface {
	Detect(text string) ([]string, error)
}

type Segmenter interface {
	Segment(body string) ([]string, error)
}

// SpeechEngine is a speech synthesis session. It is acquired for a single
// conversion and released with Close.
type SpeechEngine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SynthesizeToFile(ctx context.Context, text, path string) error
	Close() error
}

type SpeechBackend interface {
	Name() string
	Open(ctx context.Context) (SpeechEngine, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkIndex interface {
	IndexArticle(ctx context.Context, article *models.Article) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ChunkMatch, error)
	Close()
}
