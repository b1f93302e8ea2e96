package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xhad/readaloud/internal/types"
)

type HTTPConfig struct {
	BaseURL        string
	Model          string
	Voice          string
	APIKey         string
	ResponseFormat string
	Timeout        time.Duration
}

// HTTPBackend talks to an OpenAI-compatible /v1/audio/speech endpoint.
type HTTPBackend struct {
	config HTTPConfig
}

func NewHTTPBackend(config HTTPConfig) *HTTPBackend {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &HTTPBackend{config: config}
}

func (b *HTTPBackend) Name() string {
	return BackendHTTP
}

func (b *HTTPBackend) Open(ctx context.Context) (types.SpeechEngine, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &httpEngine{
		config:    b.config,
		transport: transport,
		client:    &http.Client{Timeout: b.config.Timeout, Transport: transport},
	}, nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type httpEngine struct {
	config    HTTPConfig
	transport *http.Transport
	client    *http.Client
}

func (e *httpEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          e.config.Model,
		Input:          text,
		Voice:          e.config.Voice,
		ResponseFormat: e.config.ResponseFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call speech endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("speech endpoint returned no audio")
	}
	return body, nil
}

func (e *httpEngine) SynthesizeToFile(ctx context.Context, text, path string) error {
	audio, err := e.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return os.WriteFile(path, audio, 0o644)
}

func (e *httpEngine) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
