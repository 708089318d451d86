// Package main is the bulk data ingest tool. It streams the configured
// OECD CRS-style CSV (gzipped or plain) into the database via the COPY
// protocol and prints an audit report of processed and skipped rows.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"aidflow/internal/config"
	"aidflow/internal/db"
	"aidflow/internal/loader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("data loader starting", "file", cfg.Loader.DataFile, "chunk_size", cfg.Loader.ChunkSize)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	f, err := os.Open(cfg.Loader.DataFile)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(cfg.Loader.DataFile, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	repo := db.NewRecordRepository(pool)
	ld := loader.New(repo, pool, logger, cfg.Loader)

	report, err := ld.Run(ctx, reader)
	if err != nil {
		if report != nil {
			return fmt.Errorf("ingest failed after %d rows: %w", report.Processed, err)
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	logger.Info("ingest complete",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"countries", report.Countries,
		"donors", report.Donors,
		"sectors", report.Sectors,
	)
	return nil
}
