// Package pipeline turns article URLs into stored audio articles and serves
// them back out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/readaloud/internal/logging"
	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
	"github.com/xhad/readaloud/pkg/identifier"
	"github.com/xhad/readaloud/pkg/store"
	"github.com/xhad/readaloud/pkg/tts"
)

type Stage string

const (
	StageFetched     Stage = "fetched"
	StageSegmented   Stage = "segmented"
	StageSynthesized Stage = "synthesized"
	StageStored      Stage = "stored"
)

// Progress reports how far a conversion has got. For StageSynthesized,
// Done counts finished chunks out of Total.
type Progress struct {
	Stage Stage `json:"stage"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

// ProgressFunc may be called from several goroutines at once.
type ProgressFunc func(Progress)

type ConverterConfig struct {
	Workers          int
	SynthesisTimeout time.Duration
}

type Converter struct {
	config    ConverterConfig
	fetcher   types.Fetcher
	segmenter types.Segmenter
	backend   types.SpeechBackend
	articles  *store.ArticleStore
	index     types.ChunkIndex
	logger    *slog.Logger
}

func NewConverter(config ConverterConfig, fetcher types.Fetcher, segmenter types.Segmenter,
	backend types.SpeechBackend, articles *store.ArticleStore, logger *slog.Logger) *Converter {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.SynthesisTimeout <= 0 {
		config.SynthesisTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Converter{
		config:    config,
		fetcher:   fetcher,
		segmenter: segmenter,
		backend:   backend,
		articles:  articles,
		logger:    logger.With("component", "converter"),
	}
}

// WithIndex makes every successful conversion also feed the chunk index.
func (c *Converter) WithIndex(index types.ChunkIndex) *Converter {
	c.index = index
	return c
}

// Convert fetches the article at rawURL, synthesizes one audio file per
// chunk and stores the record, replacing any earlier conversion with the
// same identifier. Nothing is persisted unless every chunk succeeds.
func (c *Converter) Convert(ctx context.Context, rawURL string, progress ProgressFunc) (*models.Article, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url", types.ErrMissingParameter)
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	log := c.logger.With("url", rawURL)
	start := time.Now()

	doc, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.ErrorContext(ctx, "fetch failed", "error", err)
		return nil, err
	}
	progress(Progress{Stage: StageFetched, Done: 1, Total: 1})

	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = rawURL
	}
	id := identifier.Sanitize(title)
	if id == "" {
		id = identifier.FromURL(rawURL)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no identifier could be derived for %s", types.ErrStoreWrite, rawURL)
	}
	log = log.With("article", id)

	texts, err := c.segmenter.Segment(doc.Body)
	if err != nil {
		log.ErrorContext(ctx, "segmentation failed", "error", err)
		return nil, err
	}
	progress(Progress{Stage: StageSegmented, Done: len(texts), Total: len(texts)})
	log.DebugContext(ctx, "article segmented", "chunks", len(texts))

	unlock, err := c.articles.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.WarnContext(ctx, "failed to release article lock", "error", err)
		}
	}()

	if prev, err := c.articles.ReadMetadata(id); err == nil && prev.URL != rawURL {
		log.WarnContext(ctx, "overwriting article converted from a different url", "previous_url", prev.URL)
	}

	staged, err := c.synthesize(ctx, id, texts, progress)
	if err != nil {
		log.ErrorContext(ctx, "synthesis failed", "error", err)
		return nil, err
	}

	record := &models.Article{
		Title:  title,
		URL:    rawURL,
		Path:   id,
		Chunks: make([]models.Chunk, len(staged)),
	}
	if doc.PublishDate != nil {
		published := doc.PublishDate.Format(time.RFC3339)
		record.PublishDate = &published
	}
	stagedPaths := make([]string, len(staged))
	for i, s := range staged {
		record.Chunks[i] = s.Chunk
		stagedPaths[i] = s.StagedPath
	}

	if err := c.articles.Commit(record, stagedPaths); err != nil {
		c.discard(ctx, stagedPaths)
		log.ErrorContext(ctx, "failed to store article", "error", err)
		return nil, err
	}
	progress(Progress{Stage: StageStored, Done: 1, Total: 1})

	if c.index != nil {
		if err := c.index.IndexArticle(ctx, record); err != nil {
			log.WarnContext(ctx, "failed to index article", "error", err)
		}
	}

	log.InfoContext(ctx, "article converted", "chunks", len(record.Chunks), "duration", time.Since(start))
	return record, nil
}

// synthesize renders every chunk on a bounded pool. Results keep chunk order.
func (c *Converter) synthesize(ctx context.Context, id string, texts []string, progress ProgressFunc) ([]tts.Staged, error) {
	engine, err := c.backend.Open(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrSynthesis) {
			err = fmt.Errorf("%w: %w", types.ErrSynthesis, err)
		}
		return nil, err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			c.logger.WarnContext(ctx, "failed to close speech engine", "backend", c.backend.Name(), "error", err)
		}
	}()

	synth := tts.NewChunkSynthesizer(engine, c.articles.Layout(), c.config.SynthesisTimeout)
	results := make([]tts.Staged, len(texts))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := synth.SynthesizeChunk(gctx, id, i, text)
			if err != nil {
				return err
			}
			results[i] = s
			progress(Progress{Stage: StageSynthesized, Done: int(done.Add(1)), Total: len(texts)})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		paths := make([]string, 0, len(results))
		for _, s := range results {
			paths = append(paths, s.StagedPath)
		}
		c.discard(ctx, paths)
		return nil, err
	}
	return results, nil
}

func (c *Converter) discard(ctx context.Context, staged []string) {
	if err := c.articles.Discard(staged); err != nil {
		c.logger.WarnContext(ctx, "failed to remove staged audio", "error", err)
	}
}
