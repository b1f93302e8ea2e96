// Package server exposes article conversion and retrieval over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/xhad/readaloud/internal/logging"
	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/pkg/pipeline"
)

type Converter interface {
	Convert(ctx context.Context, url string, progress pipeline.ProgressFunc) (*models.Article, error)
}

type Retriever interface {
	List() ([]models.ArticleSummary, error)
	Metadata(titleOrPath string) (*models.Article, error)
	OpenAudio(titleOrPath string, index int) (*os.File, error)
	Search(ctx context.Context, query string, limit int) ([]models.ChunkMatch, error)
}

type Config struct {
	Addr              string
	AllowedOrigins    []string
	StorageRoot       string // served read-only under its own path
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Server struct {
	config    Config
	converter Converter
	retriever Retriever
	logger    *slog.Logger
	handler   http.Handler
}

func New(config Config, converter Converter, retriever Retriever, logger *slog.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":5000"
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = 10 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		config:    config,
		converter: converter,
		retriever: retriever,
		logger:    logger.With("component", "server"),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /generate", s.handleGenerate)
	mux.HandleFunc("GET /get-articles", s.handleListArticles)
	mux.HandleFunc("GET /get-article-metadata", s.handleArticleMetadata)
	mux.HandleFunc("GET /get-audio", s.handleAudio)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Add a simple health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if prefix := staticPrefix(s.config.StorageRoot); prefix != "" {
		files := http.StripPrefix(prefix, hideDotFiles(http.FileServer(http.Dir(s.config.StorageRoot))))
		mux.Handle("GET "+prefix, files)
	}

	return s.correlation(s.cors(mux))
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// staticPrefix maps the storage root to the URL path audio references use.
func staticPrefix(root string) string {
	if root == "" {
		return ""
	}
	p := strings.Trim(path.Clean(filepath.ToSlash(root)), "/")
	if p == "" || p == "." || strings.HasPrefix(p, "..") {
		return ""
	}
	return "/" + p + "/"
}

func hideDotFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, seg := range strings.Split(r.URL.Path, "/") {
			if strings.HasPrefix(seg, ".") {
				http.NotFound(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
