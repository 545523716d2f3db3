// Command migrate applies the embedded SQL schema migrations.
//
// Usage:
//
//	go run ./cmd/migrate            # apply all pending migrations
//	go run ./cmd/migrate -down 1    # roll back one step
//	go run ./cmd/migrate -version   # print current schema version
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/riverwatch/hydro-data-service/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	down := flag.Int("down", 0, "number of migrations to roll back (0 = migrate up)")
	version := flag.Bool("version", false, "print current schema version and exit")
	flag.Parse()

	_ = godotenv.Load(".env")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	// golang-migrate selects its driver by URL scheme; route postgres URLs
	// through the pgx/v5 driver.
	databaseURL = strings.Replace(databaseURL, "postgresql://", "pgx5://", 1)
	databaseURL = strings.Replace(databaseURL, "postgres://", "pgx5://", 1)

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if *version {
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty=%v)\n", v, dirty)
		return nil
	}

	if *down > 0 {
		err = m.Steps(-*down)
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("migrations applied")
	return nil
}
