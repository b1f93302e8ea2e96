package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Server config
	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "listen address is required",
		})
	}

	// Validate Storage config
	if strings.TrimSpace(c.Storage.Root) == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.root",
			Message: "storage root is required",
		})
	}
	if strings.ContainsAny(c.Storage.AudioExt, `/\ `) {
		errors = append(errors, ValidationError{
			Field:   "storage.audio_ext",
			Message: fmt.Sprintf("invalid audio extension: %s", c.Storage.AudioExt),
		})
	}

	// Validate Scraper config
	if c.Scraper.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.timeout",
			Message: "timeout must not be negative",
		})
	}
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate Processor config
	switch c.Processor.Detector {
	case "punkt", "rules":
	default:
		errors = append(errors, ValidationError{
			Field:   "processor.detector",
			Message: fmt.Sprintf("unknown sentence detector: %s", c.Processor.Detector),
		})
	}

	// Validate Synthesizer config
	switch c.Synthesizer.Backend {
	case "command":
		if len(c.Synthesizer.Command) == 0 {
			errors = append(errors, ValidationError{
				Field:   "synthesizer.command",
				Message: "command backend needs a command",
			})
		} else if writesWAVOnly(c.Synthesizer.Command[0]) && audioFormat(c.Storage.AudioExt) != "wav" {
			errors = append(errors, ValidationError{
				Field:   "storage.audio_ext",
				Message: fmt.Sprintf("%s writes wav audio, not %s", filepath.Base(c.Synthesizer.Command[0]), c.Storage.AudioExt),
			})
		}
	case "http":
		if c.Synthesizer.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "synthesizer.base_url",
				Message: "http backend needs a base URL",
			})
		} else if u, err := url.Parse(c.Synthesizer.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "synthesizer.base_url",
				Message: "invalid speech service URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "synthesizer.backend",
			Message: fmt.Sprintf("unknown speech backend: %s", c.Synthesizer.Backend),
		})
	}

	if audioFormat(c.Synthesizer.ResponseFormat) != audioFormat(c.Storage.AudioExt) {
		errors = append(errors, ValidationError{
			Field:   "synthesizer.response_format",
			Message: fmt.Sprintf("response_format %s does not match audio_ext %s", c.Synthesizer.ResponseFormat, c.Storage.AudioExt),
		})
	}

	if c.Synthesizer.Workers < 1 || c.Synthesizer.Workers > 64 {
		errors = append(errors, ValidationError{
			Field:   "synthesizer.workers",
			Message: "workers must be between 1 and 64",
		})
	}

	if c.Synthesizer.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "synthesizer.timeout",
			Message: "timeout must not be negative",
		})
	}

	// Validate Index config
	if c.Index.Enabled {
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "database URL is required when the index is enabled",
			})
		} else if _, err := url.Parse(c.Index.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "invalid database URL",
			})
		}

		if _, err := url.Parse(c.Index.OllamaURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.ollama_url",
				Message: "invalid Ollama base URL",
			})
		}
	}

	if !tableName.MatchString(c.Index.TableName) {
		errors = append(errors, ValidationError{
			Field:   "index.table_name",
			Message: "table_name must be a plain SQL identifier",
		})
	}

	if c.Index.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Logging config
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Logging.Level),
		})
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown log format: %s", c.Logging.Format),
		})
	}

	return errors
}

func audioFormat(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func writesWAVOnly(program string) bool {
	switch filepath.Base(program) {
	case "espeak", "espeak-ng":
		return true
	}
	return false
}
