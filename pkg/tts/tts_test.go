package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/readaloud/internal/types"
	"github.com/xhad/readaloud/pkg/store"
)

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(SynthesizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, BackendCommand, b.Name())

	b, err = NewBackend(SynthesizerConfig{Backend: BackendHTTP, BaseURL: "http://localhost:8880"})
	require.NoError(t, err)
	assert.Equal(t, BackendHTTP, b.Name())

	_, err = NewBackend(SynthesizerConfig{Backend: BackendHTTP})
	assert.Error(t, err)

	_, err = NewBackend(SynthesizerConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestCommandBackendMissingBinary(t *testing.T) {
	b := NewCommandBackend([]string{"readaloud-no-such-binary"}, "")
	_, err := b.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSynthesis))
}

func TestCommandEngineOutputPlaceholder(t *testing.T) {
	b := NewCommandBackend([]string{"sh", "-c", `cat > "$1"`, "sh", "{output}"}, "")
	engine, err := b.Open(context.Background())
	require.NoError(t, err)
	defer engine.Close()

	out := filepath.Join(t.TempDir(), "0.mp3")
	require.NoError(t, engine.SynthesizeToFile(context.Background(), "Hello there.", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", string(data))
}

func TestCommandEngineStdout(t *testing.T) {
	b := NewCommandBackend([]string{"cat"}, "")
	engine, err := b.Open(context.Background())
	require.NoError(t, err)

	audio, err := engine.Synthesize(context.Background(), "spoken words")
	require.NoError(t, err)
	assert.Equal(t, "spoken words", string(audio))
}

func TestCommandEngineVoicePlaceholder(t *testing.T) {
	b := NewCommandBackend([]string{"sh", "-c", `printf '%s' "$1"`, "sh", "{voice}"}, "en-gb")
	engine, err := b.Open(context.Background())
	require.NoError(t, err)

	audio, err := engine.Synthesize(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "en-gb", string(audio))
}

func TestCommandEngineFailure(t *testing.T) {
	b := NewCommandBackend([]string{"sh", "-c", "echo boom >&2; exit 3"}, "")
	engine, err := b.Open(context.Background())
	require.NoError(t, err)

	err = engine.SynthesizeToFile(context.Background(), "text", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestHTTPEngine(t *testing.T) {
	var got speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-fake-audio"))
	}))
	defer server.Close()

	b := NewHTTPBackend(HTTPConfig{
		BaseURL:        server.URL + "/",
		Model:          "tts-1",
		Voice:          "alloy",
		APIKey:         "secret",
		ResponseFormat: "mp3",
		Timeout:        5 * time.Second,
	})
	engine, err := b.Open(context.Background())
	require.NoError(t, err)
	defer engine.Close()

	out := filepath.Join(t.TempDir(), "0.mp3")
	require.NoError(t, engine.SynthesizeToFile(context.Background(), "Read me.", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ID3-fake-audio", string(data))
	assert.Equal(t, speechRequest{Model: "tts-1", Input: "Read me.", Voice: "alloy", ResponseFormat: "mp3"}, got)
}

func TestHTTPEngineErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusBadRequest)
	}))
	defer server.Close()

	engine, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}).Open(context.Background())
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "voice not found")
}

type fakeEngine struct {
	audio string
	err   error
}

func (f fakeEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(f.audio), f.err
}

func (f fakeEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte(f.audio), 0o644)
}

func (f fakeEngine) Close() error { return nil }

func TestSynthesizeChunk(t *testing.T) {
	layout := store.NewLayout(t.TempDir(), "mp3")
	s := NewChunkSynthesizer(fakeEngine{audio: "audio"}, layout, time.Second)

	staged, err := s.SynthesizeChunk(context.Background(), "my_article", 2, "Some text.")
	require.NoError(t, err)

	assert.Equal(t, "Some text.", staged.Chunk.Text)
	assert.Equal(t, layout.AudioRef("my_article", 2), staged.Chunk.AudioPath)
	assert.Equal(t, layout.AudioPath("my_article", 2)+store.StagedSuffix, staged.StagedPath)
	assert.FileExists(t, staged.StagedPath)
	assert.NoFileExists(t, layout.AudioPath("my_article", 2))
}

func TestSynthesizeChunkEngineError(t *testing.T) {
	layout := store.NewLayout(t.TempDir(), "mp3")
	s := NewChunkSynthesizer(fakeEngine{err: errors.New("engine exploded")}, layout, time.Second)

	_, err := s.SynthesizeChunk(context.Background(), "a", 0, "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSynthesis))
	assert.Contains(t, err.Error(), "engine exploded")
}

func TestSynthesizeChunkEmptyAudio(t *testing.T) {
	layout := store.NewLayout(t.TempDir(), "mp3")
	s := NewChunkSynthesizer(fakeEngine{audio: ""}, layout, time.Second)

	_, err := s.SynthesizeChunk(context.Background(), "a", 0, "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSynthesis))
	assert.NoFileExists(t, layout.AudioPath("a", 0)+store.StagedSuffix)
}
