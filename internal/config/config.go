// Package config reads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL string

	// Upstream endpoints.
	NowIndexURL        string
	MetadataURL        string
	HistoricalDailyURL string

	// Fetch behavior.
	FetchTimeout     time.Duration
	FetchConcurrency int
	FetchRate        float64 // requests per second across all workers, 0 = unlimited
	OnlyStations     []string

	// Scheduling knobs.
	HistoricalBatchSize int
	DiscoveryMaxAge     time.Duration
	StaleAfter          time.Duration
	DryRun              bool

	// HTTP server.
	HTTPAddr        string
	APIBearerToken  string
	ShutdownTimeout time.Duration

	// Observability.
	LogLevel  string
	LogFormat string

	// Backfill chain trigger. Disabled when no brokers are configured; cron
	// remains the safety net either way.
	KafkaBrokers    []string
	KafkaChainTopic string
}

// Load reads configuration from the environment (optionally .env), applying
// defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NowIndexURL:        envOrDefault("CHMI_NOW_INDEX", "https://opendata.chmi.cz/hydrology/now/data/"),
		MetadataURL:        envOrDefault("CHMI_META1", "https://opendata.chmi.cz/hydrology/now/metadata/meta1.json"),
		HistoricalDailyURL: envOrDefault("CHMI_HISTORICAL_DAILY", "https://opendata.chmi.cz/hydrology/historical/data/daily/"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		APIBearerToken:     os.Getenv("API_BEARER_TOKEN"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		KafkaChainTopic:    envOrDefault("KAFKA_CHAIN_TOPIC", "hydro-backfill-chain"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	var err error
	if cfg.FetchTimeout, err = envDuration("FETCH_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.DiscoveryMaxAge, err = envDuration("DISCOVERY_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = envDuration("STALE_AFTER", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = envInt("FETCH_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.HistoricalBatchSize, err = envInt("HISTORICAL_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.FetchRate, err = envFloat("FETCH_RATE", 0); err != nil {
		return nil, err
	}

	if cfg.FetchConcurrency < 1 {
		return nil, errors.New("FETCH_CONCURRENCY must be at least 1")
	}
	if cfg.HistoricalBatchSize < 1 {
		return nil, errors.New("HISTORICAL_BATCH_SIZE must be at least 1")
	}

	cfg.OnlyStations = splitList(os.Getenv("ONLY_STATIONS"))
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	dryRun := strings.TrimSpace(os.Getenv("DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}

// OnlyStationsSet returns the allow-list as a set, or nil when unrestricted.
func (c *Config) OnlyStationsSet() map[string]struct{} {
	if len(c.OnlyStations) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.OnlyStations))
	for _, id := range c.OnlyStations {
		set[id] = struct{}{}
	}
	return set
}

func envOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, defaultValue int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, defaultValue float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
