package models

import "time"

// Document is an article as returned by a content fetcher, before segmentation.
type Document struct {
	URL         string
	Title       string
	Body        string
	PublishDate *time.Time
	Metadata    map[string]interface{}
}

// ChunkMatch is a stored chunk returned by a similarity search.
type ChunkMatch struct {
	Path       string  `json:"path"`
	Title      string  `json:"title"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}
