package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/urfave/cli/v3"

	"github.com/moviekeep/moviekeep/config"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := config.Default()
	path := env("MOVIEKEEP_CONFIG", "config.toml")
	if _, err := os.Stat(path); err == nil {
		if loaded, err := config.Load(path); err == nil {
			cfg = loaded
		}
	}
	cfg.Storage.Backend = env("MOVIEKEEP_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataDir = env("MOVIEKEEP_DATA_DIR", cfg.Storage.DataDir)

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}

	r := NewRunner(cfg, logger)

	app := &cli.Command{
		Name:     "moviekeep",
		Usage:    "Personal movie catalog over json, csv or sqlite storage",
		Version:  "1.0.0",
		Commands: r.register(),
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}
