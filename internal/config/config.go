package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"pdfchat/internal/models"
)

// DefaultConfigFile is read from the working directory when no path is given
const DefaultConfigFile = "pdfchat.yaml"

// sharedEnv holds the unprefixed variables other tools also understand.
// The PDFCHAT_ forms take precedence.
type sharedEnv struct {
	OllamaHost  string `envconfig:"OLLAMA_HOST"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Config fields are overridden by PDFCHAT_* variables. The prefix is part of
// each tag so envconfig never falls back to the bare names.
type Config struct {
	// OllamaHost overrides OLLAMA_HOST when set
	OllamaHost     string  `yaml:"ollama_host" envconfig:"PDFCHAT_OLLAMA_HOST"`
	ChatModel      string  `yaml:"chat_model" envconfig:"PDFCHAT_CHAT_MODEL"`
	EmbeddingModel string  `yaml:"embedding_model" envconfig:"PDFCHAT_EMBEDDING_MODEL"`
	Temperature    float64 `yaml:"temperature" envconfig:"PDFCHAT_TEMPERATURE"`

	ChunkSize      int  `yaml:"chunk_size" envconfig:"PDFCHAT_CHUNK_SIZE"`
	ChunkOverlap   int  `yaml:"chunk_overlap" envconfig:"PDFCHAT_CHUNK_OVERLAP"`
	SplitLongWords bool `yaml:"split_long_words" envconfig:"PDFCHAT_SPLIT_LONG_WORDS"`
	TopK           int  `yaml:"top_k" envconfig:"PDFCHAT_TOP_K"`

	EmbedConcurrency int           `yaml:"embed_concurrency" envconfig:"PDFCHAT_EMBED_CONCURRENCY"`
	EmbedRetries     int           `yaml:"embed_retries" envconfig:"PDFCHAT_EMBED_RETRIES"`
	EmbedTimeout     time.Duration `yaml:"embed_timeout" envconfig:"PDFCHAT_EMBED_TIMEOUT"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout" envconfig:"PDFCHAT_GENERATE_TIMEOUT"`

	OCRLanguage   string  `yaml:"ocr_language" envconfig:"PDFCHAT_OCR_LANGUAGE"`
	OCRScale      float64 `yaml:"ocr_scale" envconfig:"PDFCHAT_OCR_SCALE"`
	OCRTargetSize int     `yaml:"ocr_target_size" envconfig:"PDFCHAT_OCR_TARGET_SIZE"`
	OCRWorkers    int     `yaml:"ocr_workers" envconfig:"PDFCHAT_OCR_WORKERS"`
	// DebugDir receives preprocessed page images; empty disables them
	DebugDir string `yaml:"debug_dir" envconfig:"PDFCHAT_DEBUG_DIR"`

	// DatabaseURL enables the OCR run archive when set
	DatabaseURL string `yaml:"database_url" envconfig:"PDFCHAT_DATABASE_URL"`
	LogLevel    string `yaml:"log_level" envconfig:"PDFCHAT_LOG_LEVEL"`
}

// Default returns the built-in configuration
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		ChatModel:        "llama3.2",
		EmbeddingModel:   "llama3.2",
		Temperature:      0.7,
		ChunkSize:        1000,
		ChunkOverlap:     200,
		TopK:             4,
		EmbedConcurrency: 3,
		EmbedRetries:     3,
		EmbedTimeout:     30 * time.Second,
		GenerateTimeout:  120 * time.Second,
		OCRLanguage:      "eng",
		OCRScale:         4.0,
		OCRTargetSize:    4000,
		OCRWorkers:       workers,
		DebugDir:         "ocr_debug",
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (or DefaultConfigFile when path is empty and the file exists), a .env
// file and PDFCHAT_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	// Ignore errors, the variables might be set in the shell
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var shared sharedEnv
	if err := envconfig.Process("", &shared); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	if shared.OllamaHost != "" {
		cfg.OllamaHost = shared.OllamaHost
	}
	if shared.DatabaseURL != "" {
		cfg.DatabaseURL = shared.DatabaseURL
	}

	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be positive", models.ErrInvalidConfig))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", models.ErrInvalidConfig))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%w: top_k must be positive", models.ErrInvalidConfig))
	}
	if c.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: embed_concurrency must be positive", models.ErrInvalidConfig))
	}
	if c.EmbedRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: embed_retries must not be negative", models.ErrInvalidConfig))
	}
	if c.EmbedTimeout <= 0 || c.GenerateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeouts must be positive", models.ErrInvalidConfig))
	}
	if c.OCRScale <= 0 {
		errs = append(errs, fmt.Errorf("%w: ocr_scale must be positive", models.ErrInvalidConfig))
	}
	if c.OCRTargetSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: ocr_target_size must be positive", models.ErrInvalidConfig))
	}
	if c.OCRWorkers <= 0 {
		errs = append(errs, fmt.Errorf("%w: ocr_workers must be positive", models.ErrInvalidConfig))
	}
	if c.OCRLanguage == "" {
		errs = append(errs, fmt.Errorf("%w: ocr_language is required", models.ErrInvalidConfig))
	}
	if c.ChatModel == "" || c.EmbeddingModel == "" {
		errs = append(errs, fmt.Errorf("%w: chat_model and embedding_model are required", models.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
