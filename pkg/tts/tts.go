package tts

import (
	"fmt"
	"time"

	"github.com/xhad/readaloud/internal/types"
)

const (
	BackendCommand = "command"
	BackendHTTP    = "http"
)

// SynthesizerConfig selects and configures the speech backend.
type SynthesizerConfig struct {
	Backend        string
	Command        []string // argv; {output} and {voice} are substituted
	Voice          string
	BaseURL        string
	Model          string
	APIKey         string
	ResponseFormat string
	Timeout        time.Duration // per synthesis call
}

var DefaultCommand = []string{"espeak-ng", "--stdin", "-w", "{output}"}

func (c *SynthesizerConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendCommand
	}
	if len(c.Command) == 0 {
		c.Command = DefaultCommand
	}
	if c.Model == "" {
		c.Model = "tts-1"
	}
	if c.Voice == "" && c.Backend == BackendHTTP {
		c.Voice = "alloy"
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = "mp3"
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
}

// NewBackend builds the backend named by config.Backend.
func NewBackend(config SynthesizerConfig) (types.SpeechBackend, error) {
	config.applyDefaults()

	switch config.Backend {
	case BackendCommand:
		return NewCommandBackend(config.Command, config.Voice), nil
	case BackendHTTP:
		if config.BaseURL == "" {
			return nil, fmt.Errorf("http speech backend requires a base url")
		}
		return NewHTTPBackend(HTTPConfig{
			BaseURL:        config.BaseURL,
			Model:          config.Model,
			Voice:          config.Voice,
			APIKey:         config.APIKey,
			ResponseFormat: config.ResponseFormat,
			Timeout:        config.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown speech backend %q", config.Backend)
	}
}
