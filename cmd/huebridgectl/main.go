package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/huebridged/huebridged/cmd/huebridgectl/commands"
	"github.com/huebridged/huebridged/pkg/client"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	rootCmd := commands.NewRootCommand(version, commit, buildDate)

	server := "http://127.0.0.1:8686"
	if flag, _ := rootCmd.PersistentFlags().GetString("server"); flag != "" {
		server = flag
	}
	if env := os.Getenv("HUEBRIDGED_SERVER"); env != "" {
		server = env
	}

	apiClient := client.New(logger, server)
	rootCmd.SetContext(commands.WithClient(context.Background(), apiClient))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
