package tts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
	"github.com/xhad/readaloud/pkg/store"
)

// Staged is a synthesized chunk whose audio still lives at StagedPath.
// Chunk.AudioPath is the reference it will have once committed.
type Staged struct {
	Chunk      models.Chunk
	StagedPath string
}

// ChunkSynthesizer writes one audio file per chunk using an engine that is
// already open for the current conversion.
type ChunkSynthesizer struct {
	engine  types.SpeechEngine
	layout  store.Layout
	timeout time.Duration
}

func NewChunkSynthesizer(engine types.SpeechEngine, layout store.Layout, timeout time.Duration) *ChunkSynthesizer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ChunkSynthesizer{engine: engine, layout: layout, timeout: timeout}
}

func (s *ChunkSynthesizer) SynthesizeChunk(ctx context.Context, id string, index int, text string) (Staged, error) {
	if err := os.MkdirAll(s.layout.AudioDir(id), 0o755); err != nil {
		return Staged{}, fmt.Errorf("%w: chunk %d: %w", types.ErrSynthesis, index, err)
	}

	staged := s.layout.AudioPath(id, index) + store.StagedSuffix

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.engine.SynthesizeToFile(callCtx, text, staged); err != nil {
		os.Remove(staged)
		return Staged{}, fmt.Errorf("%w: chunk %d: %w", types.ErrSynthesis, index, err)
	}

	info, err := os.Stat(staged)
	if err != nil {
		return Staged{}, fmt.Errorf("%w: chunk %d: %w", types.ErrSynthesis, index, err)
	}
	if info.Size() == 0 {
		os.Remove(staged)
		return Staged{}, fmt.Errorf("%w: chunk %d: engine produced no audio", types.ErrSynthesis, index)
	}

	return Staged{
		Chunk: models.Chunk{
			Text:      text,
			AudioPath: s.layout.AudioRef(id, index),
		},
		StagedPath: staged,
	}, nil
}
