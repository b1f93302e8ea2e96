package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr              string        `yaml:"addr"`
		AllowedOrigins    []string      `yaml:"allowed_origins"`
		ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Root     string `yaml:"root"`
		AudioExt string `yaml:"audio_ext"`
	} `yaml:"storage"`

	Scraper struct {
		Timeout          time.Duration `yaml:"timeout"`
		RateLimit        float64       `yaml:"rate_limit"`
		UserAgent        string        `yaml:"user_agent"`
		ContentSelectors []string      `yaml:"content_selectors"`
	} `yaml:"scraper"`

	Processor struct {
		Detector string `yaml:"detector"`
	} `yaml:"processor"`

	Synthesizer struct {
		Backend        string        `yaml:"backend"`
		Command        []string      `yaml:"command"`
		Voice          string        `yaml:"voice"`
		BaseURL        string        `yaml:"base_url"`
		Model          string        `yaml:"model"`
		APIKey         string        `yaml:"api_key"`
		ResponseFormat string        `yaml:"response_format"`
		Timeout        time.Duration `yaml:"timeout"`
		Workers        int           `yaml:"workers"`
	} `yaml:"synthesizer"`

	Index struct {
		Enabled     bool   `yaml:"enabled"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		VectorDim   int    `yaml:"vector_dim"`
		EmbedModel  string `yaml:"embed_model"`
		OllamaURL   string `yaml:"ollama_url"`
		SearchLimit int    `yaml:"search_limit"`
	} `yaml:"index"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// envOverrides are applied on top of the file. Unset variables leave the
// file value alone.
type envOverrides struct {
	Addr        string `envconfig:"READALOUD_ADDR"`
	StorageRoot string `envconfig:"READALOUD_STORAGE_ROOT"`
	LogLevel    string `envconfig:"READALOUD_LOG_LEVEL"`
	TTSBackend  string `envconfig:"READALOUD_TTS_BACKEND"`
	TTSURL      string `envconfig:"READALOUD_TTS_URL"`
	TTSAPIKey   string `envconfig:"READALOUD_TTS_API_KEY"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	OllamaURL   string `envconfig:"OLLAMA_BASE_URL"`
}

func LoadConfig(path string) (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/readaloud/config.yaml"),
			"/etc/readaloud/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %v", err)
		}
	}

	// Merge with environment variables
	if err := mergeWithEnv(&config); err != nil {
		return nil, err
	}

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

// Default returns the configuration used when no file or environment is given.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":5000"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if config.Server.ReadHeaderTimeout == 0 {
		config.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 15 * time.Second
	}

	if config.Storage.Root == "" {
		config.Storage.Root = "articles"
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}

	if config.Processor.Detector == "" {
		config.Processor.Detector = "punkt"
	}

	if config.Synthesizer.Backend == "" {
		config.Synthesizer.Backend = "command"
	}
	if config.Synthesizer.Backend == "command" && len(config.Synthesizer.Command) == 0 {
		config.Synthesizer.Command = []string{"espeak-ng", "--stdin", "-w", "{output}"}
	}
	// espeak-ng only writes WAV; speech services default to MP3.
	if config.Storage.AudioExt == "" {
		if config.Synthesizer.Backend == "command" {
			config.Storage.AudioExt = "wav"
		} else {
			config.Storage.AudioExt = "mp3"
		}
	}
	if config.Synthesizer.Model == "" {
		config.Synthesizer.Model = "tts-1"
	}
	if config.Synthesizer.ResponseFormat == "" {
		config.Synthesizer.ResponseFormat = config.Storage.AudioExt
	}
	if config.Synthesizer.Timeout == 0 {
		config.Synthesizer.Timeout = 2 * time.Minute
	}
	if config.Synthesizer.Workers == 0 {
		config.Synthesizer.Workers = 1
	}

	if config.Index.TableName == "" {
		config.Index.TableName = "article_chunks"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 768
	}
	if config.Index.EmbedModel == "" {
		config.Index.EmbedModel = "nomic-embed-text:latest"
	}
	if config.Index.OllamaURL == "" {
		config.Index.OllamaURL = "http://localhost:11434"
	}
	if config.Index.SearchLimit == 0 {
		config.Index.SearchLimit = 5
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

func mergeWithEnv(config *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("error reading environment: %v", err)
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&config.Server.Addr, env.Addr)
	override(&config.Storage.Root, env.StorageRoot)
	override(&config.Logging.Level, env.LogLevel)
	override(&config.Synthesizer.Backend, env.TTSBackend)
	override(&config.Synthesizer.BaseURL, env.TTSURL)
	override(&config.Synthesizer.APIKey, env.TTSAPIKey)
	override(&config.Index.DatabaseURL, env.DatabaseURL)
	override(&config.Index.OllamaURL, env.OllamaURL)
	return nil
}
