package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
	"github.com/xhad/readaloud/pkg/pipeline"
	"github.com/xhad/readaloud/pkg/store"
)

type fakeConverter struct {
	mu     sync.Mutex
	calls  []string
	record *models.Article
	err    error
}

func (f *fakeConverter) Convert(ctx context.Context, url string, progress pipeline.ProgressFunc) (*models.Article, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if progress != nil {
		progress(pipeline.Progress{Stage: pipeline.StageFetched, Done: 1, Total: 1})
		progress(pipeline.Progress{Stage: pipeline.StageSynthesized, Done: 1, Total: 1})
		progress(pipeline.Progress{Stage: pipeline.StageStored, Done: 1, Total: 1})
	}
	return f.record, nil
}

type testEnv struct {
	root      string
	articles  *store.ArticleStore
	converter *fakeConverter
	server    *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	articles := store.NewArticleStore(store.ArticleStoreConfig{Root: root})
	conv := &fakeConverter{}
	srv := New(Config{StorageRoot: root}, conv, pipeline.NewRetriever(articles), nil)
	return &testEnv{root: root, articles: articles, converter: conv, server: srv}
}

// seed stores an article with one audio file per chunk.
func (e *testEnv) seed(t *testing.T, title, id string, chunks ...string) *models.Article {
	t.Helper()
	layout := e.articles.Layout()
	require.NoError(t, e.articles.EnsureDirs(id))

	record := &models.Article{Title: title, URL: "https://example.com/" + id, Path: id}
	for i, text := range chunks {
		require.NoError(t, os.WriteFile(layout.AudioPath(id, i), []byte("audio:"+text), 0o644))
		record.Chunks = append(record.Chunks, models.Chunk{Text: text, AudioPath: layout.AudioRef(id, i)})
	}
	require.NoError(t, e.articles.Write(record))
	return record
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	return body.Error
}

func TestGenerateMissingURL(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/generate")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w), "url")
	assert.Empty(t, env.converter.calls)
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t)
	env.converter.record = &models.Article{
		Title:  "Café World!",
		URL:    "https://example.com/a",
		Path:   "cafe_world",
		Chunks: []models.Chunk{{Text: "One. Two. Three.", AudioPath: "articles/cafe_world/audio_files/0.mp3"}},
	}

	w := env.get(t, "/generate?url=https%3A%2F%2Fexample.com%2Fa")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"https://example.com/a"}, env.converter.calls)

	var got models.Article
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *env.converter.record, got)
}

func TestGenerateFailure(t *testing.T) {
	env := newTestEnv(t)
	env.converter.err = fmt.Errorf("%w: status 503", types.ErrFetch)

	w := env.get(t, "/generate?url=https://example.com/down")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeError(t, w), "status 503")
}

func TestListArticles(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/get-articles")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"articles":[]}`, w.Body.String())

	env.seed(t, "Zebra Facts", "zebra_facts", "Stripes.")
	env.seed(t, "Café World!", "cafe_world", "Coffee.")

	w = env.get(t, "/get-articles")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"articles":[{"title":"Café World!","path":"cafe_world"},{"title":"Zebra Facts","path":"zebra_facts"}]}`, w.Body.String())
}

func TestArticleMetadata(t *testing.T) {
	env := newTestEnv(t)
	record := env.seed(t, "Café World!", "cafe_world", "One. Two. Three.", "Four.")

	w := env.get(t, "/get-article-metadata")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.get(t, "/get-article-metadata?path=missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	decodeError(t, w)

	for _, p := range []string{"cafe_world", "Caf%C3%A9%20World!"} {
		w = env.get(t, "/get-article-metadata?path="+p)
		require.Equal(t, http.StatusOK, w.Code, p)

		var got models.Article
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, *record, got)
	}
}

func TestGetAudio(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Café World!", "cafe_world", "One.", "Two.")

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing title", "/get-audio?chunk_index=0", http.StatusBadRequest},
		{"missing index", "/get-audio?title=cafe_world", http.StatusBadRequest},
		{"bad index", "/get-audio?title=cafe_world&chunk_index=abc", http.StatusBadRequest},
		{"negative index", "/get-audio?title=cafe_world&chunk_index=-1", http.StatusBadRequest},
		{"unknown article", "/get-audio?title=nonexistent&chunk_index=0", http.StatusNotFound},
		{"index past end", "/get-audio?title=cafe_world&chunk_index=2", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.get(t, tt.target)
			assert.Equal(t, tt.status, w.Code)
			decodeError(t, w)
		})
	}

	w := env.get(t, "/get-audio?title=Caf%C3%A9%20World!&chunk_index=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "audio:Two.", w.Body.String())
}

func TestGetAudioRange(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Ranged", "ranged", "Hello.")

	req := httptest.NewRequest(http.MethodGet, "/get-audio?title=ranged&chunk_index=0", nil)
	req.Header.Set("Range", "bytes=0-4")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "audio", w.Body.String())
}

func TestStaticAudio(t *testing.T) {
	env := newTestEnv(t)
	record := env.seed(t, "Static", "static", "Served directly.")

	w := env.get(t, record.Chunks[0].AudioPath)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio:Served directly.", w.Body.String())

	w = env.get(t, staticPrefix(env.root)+".locks/static.lock")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchDisabled(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/search?q=coffee")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	decodeError(t, w)

	w = env.get(t, "/search")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.get(t, "/search?q=coffee&limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMiddleware(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodOptions, "/get-articles", nil)
	req.Header.Set("Origin", "https://reader.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestCORSRestricted(t *testing.T) {
	srv := New(Config{AllowedOrigins: []string{"https://reader.example.com"}}, &fakeConverter{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://reader.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "https://reader.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("%w: url", types.ErrMissingParameter)))
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("%w: x", types.ErrNotFound)))
	assert.Equal(t, http.StatusNotImplemented, statusFor(types.ErrIndexDisabled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("%w: boom", types.ErrSynthesis)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("other")))
}

func TestStaticPrefix(t *testing.T) {
	assert.Equal(t, "/articles/", staticPrefix("articles"))
	assert.Equal(t, "/articles/", staticPrefix("./articles/"))
	assert.Equal(t, "/srv/data/articles/", staticPrefix("/srv/data/articles"))
	assert.Equal(t, "", staticPrefix(""))
	assert.Equal(t, "", staticPrefix("."))
	assert.Equal(t, "", staticPrefix("../up"))
}

func TestWebSocketConvert(t *testing.T) {
	env := newTestEnv(t)
	env.converter.record = &models.Article{Title: "Socket", URL: "https://example.com/s", Path: "socket", Chunks: []models.Chunk{}}

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "convert", Content: "https://example.com/s"}))

	var kinds []string
	var final Message
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		kinds = append(kinds, msg.Type)
		if msg.Type == "response" || msg.Type == "error" {
			final = msg
			break
		}
	}

	assert.Equal(t, "response", final.Type)
	assert.Equal(t, "socket", final.Content)
	assert.Equal(t, "status", kinds[0])
	assert.Contains(t, kinds, "progress")

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "hello"}))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestWebSocketConvertError(t *testing.T) {
	env := newTestEnv(t)
	env.converter.err = fmt.Errorf("%w: chunk 0: engine down", types.ErrSynthesis)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "convert", Content: "https://example.com/s"}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	for msg.Type != "error" {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Contains(t, msg.Content, "engine down")
}
