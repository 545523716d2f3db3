// Command probe exercises the upstream CHMI feeds without touching the
// database. It fetches the live index, the station metadata table, and a
// sample of station files, then reports what parsed and what did not.
// Useful for checking upstream format drift before it breaks an ingest.
//
// Usage:
//
//	go run ./cmd/probe -sample 5
//	go run ./cmd/probe -station 307245
//	go run ./cmd/probe -historical
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/config"
	"github.com/riverwatch/hydro-data-service/internal/domain"
)

func main() {
	sample := flag.Int("sample", 3, "number of station files to sample from the index")
	station := flag.String("station", "", "probe a single station by external id")
	historical := flag.Bool("historical", false, "probe the historical daily index instead of the live feed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	limiter := chmi.NewLimiter(cfg.FetchRate, cfg.FetchConcurrency)
	client := chmi.NewClient(cfg.FetchTimeout, limiter, logger)

	if code := run(ctx, client, cfg, *sample, *station, *historical); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, client *chmi.Client, cfg *config.Config, sample int, station string, historical bool) int {
	if station != "" {
		return probeStation(ctx, client, cfg.NowIndexURL, station+".json")
	}
	if historical {
		return probeHistorical(ctx, client, cfg.HistoricalDailyURL, sample)
	}
	return probeNow(ctx, client, cfg, sample)
}

func probeNow(ctx context.Context, client *chmi.Client, cfg *config.Config, sample int) int {
	files, err := client.FetchIndex(ctx, cfg.NowIndexURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index fetch failed: %v\n", err)
		return 1
	}
	fmt.Printf("index: %d station files\n", len(files))

	rows, err := client.FetchMetadata(ctx, cfg.MetadataURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metadata fetch failed: %v\n", err)
		return 1
	}
	usable := 0
	for _, row := range rows {
		if meta := domain.ExtractStationMeta(row); meta != nil {
			usable++
		}
	}
	fmt.Printf("metadata: %d rows, %d usable stations\n", len(rows), usable)

	if sample > len(files) {
		sample = len(files)
	}
	exitCode := 0
	for _, name := range files[:sample] {
		if probeStation(ctx, client, cfg.NowIndexURL, name) != 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func probeHistorical(ctx context.Context, client *chmi.Client, indexURL string, sample int) int {
	index, err := client.FetchIndex(ctx, indexURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "historical index fetch failed: %v\n", err)
		return 1
	}
	files := chmi.HistoricalFilesFromIndex(index)
	fmt.Printf("historical index: %d entries, %d parseable file names\n", len(index), len(files))

	years := map[int]int{}
	for _, f := range files {
		years[f.Year]++
	}
	for year, n := range years {
		fmt.Printf("  %d: %d files\n", year, n)
	}

	if sample > len(files) {
		sample = len(files)
	}
	exitCode := 0
	for _, f := range files[:sample] {
		if probeStation(ctx, client, indexURL, f.Name) != 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func probeStation(ctx context.Context, client *chmi.Client, baseURL, fileName string) int {
	points, err := client.FetchStationPoints(ctx, baseURL, fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: fetch failed: %v\n", fileName, err)
		return 1
	}

	var withLevel, withDischarge int
	for _, p := range points {
		if p.Level != nil {
			withLevel++
		}
		if p.Discharge != nil {
			withDischarge++
		}
	}
	fmt.Printf("%s: %d points (%d with level, %d with discharge)",
		fileName, len(points), withLevel, withDischarge)
	if len(points) > 0 {
		fmt.Printf(", %s .. %s", points[0].TS, points[len(points)-1].TS)
	}
	fmt.Println()
	return 0
}
