package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xhad/readaloud/internal/logging"
	"github.com/xhad/readaloud/pkg/config"
	"github.com/xhad/readaloud/pkg/llm"
	"github.com/xhad/readaloud/pkg/pipeline"
	"github.com/xhad/readaloud/pkg/processor"
	"github.com/xhad/readaloud/pkg/scraper"
	"github.com/xhad/readaloud/pkg/store"
	"github.com/xhad/readaloud/pkg/tts"
	"github.com/xhad/readaloud/server"
)

// app holds the components shared by every subcommand.
type app struct {
	config    *config.Config
	logger    *slog.Logger
	articles  *store.ArticleStore
	retriever *pipeline.Retriever
	index     *store.VectorStore
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	// Override config with command line flags if provided
	if opts.root != "" {
		cfg.Storage.Root = opts.root
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if verrs := cfg.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts *globalOptions, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, logOut)
	if err != nil {
		return nil, err
	}

	articles := store.NewArticleStore(store.ArticleStoreConfig{
		Root:     cfg.Storage.Root,
		AudioExt: cfg.Storage.AudioExt,
		Logger:   logger,
	})

	a := &app{
		config:    cfg,
		logger:    logger,
		articles:  articles,
		retriever: pipeline.NewRetriever(articles),
	}

	if cfg.Index.Enabled {
		embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   cfg.Index.EmbedModel,
			BaseURL: cfg.Index.OllamaURL,
		})
		if err != nil {
			return nil, err
		}

		index, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString:  cfg.Index.DatabaseURL,
			TableName:   cfg.Index.TableName,
			VectorDim:   cfg.Index.VectorDim,
			SearchLimit: cfg.Index.SearchLimit,
		}, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %v", err)
		}
		a.index = index
		a.retriever.WithSearch(index, embedder, cfg.Index.SearchLimit)
	}

	return a, nil
}

// converter builds a conversion pipeline. onFetch, when set, is called as
// each page request goes out.
func (a *app) converter(onFetch func(url string)) (*pipeline.Converter, error) {
	cfg := a.config

	fetcher := scraper.NewWithConfig(scraper.ScraperConfig{
		Timeout:          cfg.Scraper.Timeout,
		RateLimit:        cfg.Scraper.RateLimit,
		UserAgent:        cfg.Scraper.UserAgent,
		ContentSelectors: cfg.Scraper.ContentSelectors,
		OnProgress:       onFetch,
	})

	segmenter := processor.NewWithConfig(processor.ProcessorConfig{
		Detector: cfg.Processor.Detector,
	})

	backend, err := tts.NewBackend(tts.SynthesizerConfig{
		Backend:        cfg.Synthesizer.Backend,
		Command:        cfg.Synthesizer.Command,
		Voice:          cfg.Synthesizer.Voice,
		BaseURL:        cfg.Synthesizer.BaseURL,
		Model:          cfg.Synthesizer.Model,
		APIKey:         cfg.Synthesizer.APIKey,
		ResponseFormat: cfg.Synthesizer.ResponseFormat,
		Timeout:        cfg.Synthesizer.Timeout,
	})
	if err != nil {
		return nil, err
	}

	conv := pipeline.NewConverter(pipeline.ConverterConfig{
		Workers:          cfg.Synthesizer.Workers,
		SynthesisTimeout: cfg.Synthesizer.Timeout,
	}, fetcher, &segmenter, backend, a.articles, a.logger)
	if a.index != nil {
		conv.WithIndex(a.index)
	}
	return conv, nil
}

func (a *app) server(conv server.Converter) *server.Server {
	cfg := a.config
	return server.New(server.Config{
		Addr:              cfg.Server.Addr,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		StorageRoot:       cfg.Storage.Root,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, conv, a.retriever, a.logger)
}

func (a *app) Close() {
	if a.index != nil {
		a.index.Close()
	}
}
