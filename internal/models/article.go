package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Chunk is one synthesis and playback unit of an article.
type Chunk struct {
	Text      string `json:"text"`
	AudioPath string `json:"audio_path"`
}

// Article is the persisted metadata record of a converted article.
// Chunk order is the canonical chunk index. PublishDate is kept as the
// stored text so records written by other tools still decode.
type Article struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	PublishDate *string `json:"publish_date"`
	Path        string  `json:"path"`
	Chunks      []Chunk `json:"chunks"`
}

// ArticleSummary is the list view of a stored article.
type ArticleSummary struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// EncodeArticle serializes a record in the metadata.json format.
func EncodeArticle(a *Article) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("nil article")
	}
	out := *a
	// Always emit an array, never null.
	if out.Chunks == nil {
		out.Chunks = []Chunk{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("failed to encode article: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArticle parses a metadata.json document.
func DecodeArticle(r io.Reader) (*Article, error) {
	var a Article
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode article: %w", err)
	}
	if a.Chunks == nil {
		a.Chunks = []Chunk{}
	}
	return &a, nil
}

// Summary returns the list view of the record.
func (a *Article) Summary() ArticleSummary {
	return ArticleSummary{Title: a.Title, Path: a.Path}
}
