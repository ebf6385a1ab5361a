package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"pdfchat/internal/config"
	"pdfchat/internal/database"
	"pdfchat/internal/embedding"
	"pdfchat/internal/llm"
	"pdfchat/internal/logger"
	"pdfchat/internal/ocr"
	"pdfchat/internal/pipeline"
	"pdfchat/internal/processor"
	"pdfchat/internal/vectorindex"
)

// app holds the services built from the configuration
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	ocr      *ocr.Extractor
	pipeline *pipeline.Pipeline
	db       *database.DB
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg.LogLevel, os.Stderr), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	embedder.MaxRetries = cfg.EmbedRetries
	embedder.Timeout = cfg.EmbedTimeout

	llmClient, err := llm.NewOllamaLLM(cfg.OllamaHost, cfg.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	llmClient.Temperature = cfg.Temperature
	llmClient.Timeout = cfg.GenerateTimeout

	chunker := processor.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	chunker.SplitLongWords = cfg.SplitLongWords

	ocrExtractor := ocr.NewExtractor(ocr.Options{
		Language:   cfg.OCRLanguage,
		Scale:      cfg.OCRScale,
		TargetSize: cfg.OCRTargetSize,
		Workers:    cfg.OCRWorkers,
		DebugDir:   cfg.DebugDir,
	}, log)

	a := &app{cfg: cfg, log: log, ocr: ocrExtractor}

	deps := pipeline.Deps{
		Direct:    processor.NewDirectExtractor(log),
		OCR:       ocrExtractor,
		Chunker:   chunker,
		Index:     vectorindex.New(embedder, cfg.EmbedConcurrency, log),
		Generator: llmClient,
		TopK:      cfg.TopK,
		Logger:    log,
	}

	if cfg.DatabaseURL != "" {
		db, err := openArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			// the archive is optional, questions still work without it
			log.WarnContext(ctx, "OCR run archive disabled", "error", err)
		} else {
			a.db = db
			deps.Recorder = db
		}
	}

	a.pipeline = pipeline.New(deps)
	return a, nil
}

func openArchive(ctx context.Context, url string) (*database.DB, error) {
	db, err := database.NewDB(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
