// Package main is the batch forecast runner. It forecasts every recipient
// country that has data, concurrently with a bounded worker count, and
// writes a JSON summary of each country's final-year prediction.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"aidflow/internal/config"
	"aidflow/internal/db"
	"aidflow/internal/forecast"
	"aidflow/internal/types"
)

const (
	defaultConcurrency = 4
	forecastHorizon    = 3
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	outPath := flag.String("out", "all_forecasts.json", "output file for the forecast summary")
	targetYear := flag.Int("year", 2025, "prediction year to extract per country")
	concurrency := flag.Int("concurrency", defaultConcurrency, "number of concurrent forecasts")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	seriesRepo := db.NewSeriesRepository(pool)
	statsRepo := db.NewStatsRepository(pool)
	svc := forecast.NewService(seriesRepo, logger, types.RealClock{}, cfg.Forecast)

	countries, err := statsRepo.ListCountries(ctx)
	if err != nil {
		return fmt.Errorf("listing countries: %w", err)
	}
	logger.Info("batch forecast starting", "countries", len(countries), "year", *targetYear)

	var mu sync.Mutex
	summary := make(map[string]float64)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	for _, country := range countries {
		g.Go(func() error {
			result, err := svc.Forecast(gctx, forecast.Request{
				Country: country.Name,
				Sector:  "all",
				Model:   string(types.ModelHybrid),
				Years:   forecastHorizon,
			})
			if err != nil {
				// Countries without enough history are reported, not fatal.
				logger.Warn("forecast failed", "country", country.Name, "error", err.Error())
				return nil
			}

			for _, pred := range result.Predictions {
				if pred.Year == *targetYear {
					mu.Lock()
					summary[country.Name] = pred.Predicted
					mu.Unlock()
					logger.Info("forecast generated", "country", country.Name, "predicted", pred.Predicted)
					break
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch forecast: %w", err)
	}

	if err := writeSummary(*outPath, summary); err != nil {
		return err
	}

	logger.Info("batch forecast complete", "forecasted", len(summary), "out", *outPath)
	return nil
}

func writeSummary(path string, summary map[string]float64) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
