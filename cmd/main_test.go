package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/pkg/store"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "readaloud dev\n", out)
}

func TestListEmpty(t *testing.T) {
	out, err := runCommand(t, "list", "--root", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No articles stored yet.")
}

func TestListAndShow(t *testing.T) {
	root := t.TempDir()
	articles := store.NewArticleStore(store.ArticleStoreConfig{Root: root})
	layout := articles.Layout()

	require.NoError(t, articles.EnsureDirs("cafe_world"))
	require.NoError(t, os.WriteFile(layout.AudioPath("cafe_world", 0), make([]byte, 2048), 0o644))
	require.NoError(t, articles.Write(&models.Article{
		Title: "Café World!",
		URL:   "https://example.com/cafe",
		Path:  "cafe_world",
		Chunks: []models.Chunk{
			{Text: "Coffee is brewed. It is hot. People drink it.", AudioPath: layout.AudioRef("cafe_world", 0)},
		},
	}))

	out, err := runCommand(t, "list", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Café World!")
	assert.Contains(t, out, "cafe_world")

	out, err = runCommand(t, "show", "--root", root, "Café World!")
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/cafe")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1 chunks")

	_, err = runCommand(t, "show", "--root", root, "missing article")
	assert.Error(t, err)
}

func TestSearchDisabled(t *testing.T) {
	_, err := runCommand(t, "search", "--root", t.TempDir(), "coffee")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestConvertRequiresURL(t *testing.T) {
	_, err := runCommand(t, "convert")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runCommand(t, "list", "--root", t.TempDir(), "--log-level", "chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}, {"y", "z"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "z")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
}

func TestPrintArticlePublishDate(t *testing.T) {
	var out bytes.Buffer
	stored := "2024-05-01 00:00:00"
	printArticle(&out, &models.Article{Title: "T", Path: "t", PublishDate: &stored})
	assert.Contains(t, out.String(), "Published: 2024-05-01 (")

	out.Reset()
	loose := "early May"
	printArticle(&out, &models.Article{Title: "T", Path: "t", PublishDate: &loose})
	assert.Contains(t, out.String(), "Published: early May\n")
}
