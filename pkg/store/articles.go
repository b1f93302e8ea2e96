package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/xhad/readaloud/internal/logging"
	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
)

type ArticleStoreConfig struct {
	Root      string
	AudioExt  string
	LockRetry time.Duration
	Logger    *slog.Logger
}

// ArticleStore persists article records and chunk audio on the local
// filesystem. It assumes one writer per identifier; Lock provides that.
type ArticleStore struct {
	config ArticleStoreConfig
	layout Layout
}

func NewArticleStore(config ArticleStoreConfig) *ArticleStore {
	if config.LockRetry == 0 {
		config.LockRetry = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	return &ArticleStore{
		config: config,
		layout: NewLayout(config.Root, config.AudioExt),
	}
}

func (s *ArticleStore) Layout() Layout {
	return s.layout
}

// Write persists a record whose chunk audio is already in place.
func (s *ArticleStore) Write(record *models.Article) error {
	return s.Commit(record, nil)
}

// Commit moves staged chunk audio into place, writes metadata, then removes
// audio left over from a longer previous conversion. staged[i] belongs to
// chunk i; an empty entry means the chunk file is already final. A failed
// stale removal is logged, not returned, since the new record is complete.
func (s *ArticleStore) Commit(record *models.Article, staged []string) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", types.ErrStoreWrite)
	}
	if err := validID(record.Path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreWrite, err)
	}
	if len(staged) > len(record.Chunks) {
		return fmt.Errorf("%w: %d staged files for %d chunks", types.ErrStoreWrite, len(staged), len(record.Chunks))
	}

	id := record.Path
	if err := s.EnsureDirs(id); err != nil {
		return err
	}

	for i, src := range staged {
		if src == "" {
			continue
		}
		if err := os.Rename(src, s.layout.AudioPath(id, i)); err != nil {
			return fmt.Errorf("%w: failed to move chunk %d into place: %v", types.ErrStoreWrite, i, err)
		}
	}

	data, err := models.EncodeArticle(record)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreWrite, err)
	}
	if err := writeMetadata(s.layout.MetadataPath(id), data); err != nil {
		return fmt.Errorf("%w: failed to write metadata: %v", types.ErrStoreWrite, err)
	}

	// Old audio beyond the new chunk count goes only once nothing refers to it.
	if err := s.removeStaleAudio(id, len(record.Chunks)); err != nil {
		s.config.Logger.Warn("failed to remove stale audio", "article", id, "error", err)
	}
	return nil
}

// EnsureDirs creates the article and audio directories if needed.
func (s *ArticleStore) EnsureDirs(id string) error {
	if err := validID(id); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreWrite, err)
	}
	if err := os.MkdirAll(s.layout.AudioDir(id), 0o755); err != nil {
		return fmt.Errorf("%w: failed to create article directory: %v", types.ErrStoreWrite, err)
	}
	return nil
}

// Discard removes staged files of an abandoned conversion.
func (s *ArticleStore) Discard(staged []string) error {
	var errs []error
	for _, p := range staged {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ArticleStore) removeStaleAudio(id string, keep int) error {
	entries, err := os.ReadDir(s.layout.AudioDir(id))
	if err != nil {
		return fmt.Errorf("%w: failed to read audio directory: %v", types.ErrStoreWrite, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := s.layout.chunkIndex(e.Name())
		if !ok || idx < keep {
			continue
		}
		if err := os.Remove(filepath.Join(s.layout.AudioDir(id), e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to remove stale chunk %d: %v", types.ErrStoreWrite, idx, err)
		}
	}
	return nil
}

// List returns every stored article with a readable metadata record.
// Directories without one are skipped.
func (s *ArticleStore) List() ([]models.ArticleSummary, error) {
	entries, err := os.ReadDir(s.layout.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ArticleSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read articles directory: %w", err)
	}

	summaries := make([]models.ArticleSummary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || validID(e.Name()) != nil {
			continue
		}
		record, err := s.ReadMetadata(e.Name())
		if err != nil {
			continue
		}
		summary := record.Summary()
		// The directory name is authoritative for lookups.
		summary.Path = e.Name()
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Title != summaries[j].Title {
			return summaries[i].Title < summaries[j].Title
		}
		return summaries[i].Path < summaries[j].Path
	})
	return summaries, nil
}

// ReadMetadata loads the record stored under id.
func (s *ArticleStore) ReadMetadata(id string) (*models.Article, error) {
	if validID(id) != nil {
		return nil, fmt.Errorf("%w: article %q", types.ErrNotFound, id)
	}

	f, err := os.Open(s.layout.MetadataPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: article %q", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()

	return models.DecodeArticle(f)
}

// OpenAudioChunk opens the audio of chunk index. The caller closes the file.
func (s *ArticleStore) OpenAudioChunk(id string, index int) (*os.File, error) {
	if validID(id) != nil || index < 0 {
		return nil, fmt.Errorf("%w: chunk %d of %q", types.ErrNotFound, index, id)
	}

	f, err := os.Open(s.layout.AudioPath(id, index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: chunk %d of %q", types.ErrNotFound, index, id)
		}
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}

	info, err := f.Stat()
	if err != nil || info.IsDir() || info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: chunk %d of %q", types.ErrNotFound, index, id)
	}
	return f, nil
}

// Lock takes the per-identifier advisory lock, waiting until ctx is done.
func (s *ArticleStore) Lock(ctx context.Context, id string) (func() error, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStoreWrite, err)
	}
	lockPath := s.layout.LockPath(id)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create lock directory: %v", types.ErrStoreWrite, err)
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLockContext(ctx, s.config.LockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %q: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock %q", id)
	}
	return lock.Unlock, nil
}

// writeMetadata is replaced in tests to simulate a failing disk.
var writeMetadata = writeFileAtomic

func writeFileAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
