package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
	"github.com/xhad/readaloud/pkg/identifier"
	"github.com/xhad/readaloud/pkg/store"
)

// Retriever is the read side over stored articles. Titles and paths given
// by callers are sanitized exactly like titles on the write path.
type Retriever struct {
	articles    *store.ArticleStore
	index       types.ChunkIndex
	embedder    types.Embedder
	searchLimit int
}

func NewRetriever(articles *store.ArticleStore) *Retriever {
	return &Retriever{articles: articles, searchLimit: 5}
}

// WithSearch enables Search over the chunk index.
func (r *Retriever) WithSearch(index types.ChunkIndex, embedder types.Embedder, limit int) *Retriever {
	r.index = index
	r.embedder = embedder
	if limit > 0 {
		r.searchLimit = limit
	}
	return r
}

func (r *Retriever) SearchEnabled() bool {
	return r.index != nil && r.embedder != nil
}

func (r *Retriever) List() ([]models.ArticleSummary, error) {
	return r.articles.List()
}

func (r *Retriever) Metadata(titleOrPath string) (*models.Article, error) {
	id, err := lookupID(titleOrPath)
	if err != nil {
		return nil, err
	}
	return r.articles.ReadMetadata(id)
}

// OpenAudio opens the audio file of one chunk. The caller closes it.
func (r *Retriever) OpenAudio(titleOrPath string, index int) (*os.File, error) {
	id, err := lookupID(titleOrPath)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: chunk %d of %q", types.ErrNotFound, index, id)
	}
	return r.articles.OpenAudioChunk(id, index)
}

// Search returns the stored chunks closest in meaning to query.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]models.ChunkMatch, error) {
	if !r.SearchEnabled() {
		return nil, types.ErrIndexDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: q", types.ErrMissingParameter)
	}
	if limit <= 0 {
		limit = r.searchLimit
	}

	embeddings, err := r.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}
	return r.index.Query(ctx, embeddings[0], limit)
}

func lookupID(titleOrPath string) (string, error) {
	if strings.TrimSpace(titleOrPath) == "" {
		return "", fmt.Errorf("%w: title", types.ErrMissingParameter)
	}
	id := identifier.Sanitize(titleOrPath)
	if id == "" {
		return "", fmt.Errorf("%w: %q", types.ErrNotFound, titleOrPath)
	}
	return id, nil
}
