// Package cmd provides the arkivo CLI.
//
// Commands:
//   - serve: HTTP API server for ingestion and search
//   - ingest: index a file from the command line
//   - search: query the corpus from the command line
//   - version: build information
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkivo/arkivo/internal/config"
	"github.com/arkivo/arkivo/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "arkivo",
	Short: "Arkivo - tenant-scoped document ingestion and semantic search",
	Long: `Arkivo ingests documents, splits them into overlapping chunks,
embeds each chunk, and serves tenant-scoped semantic search over the
resulting vectors.

Run "arkivo serve" to start the HTTP API, or use "arkivo ingest" and
"arkivo search" directly from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration and builds the logger it asks
// for. Shared by every command that touches the application.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	return cfg, logger, nil
}
