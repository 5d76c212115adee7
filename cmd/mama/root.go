package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mama-memory/mama/internal/config"
	"github.com/mama-memory/mama/internal/engine"
)

var (
	rootCtx context.Context
	eng     *engine.Engine
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "mama",
	Short: "Local decision-memory engine",
	Long: `mama records engineering decisions as they're made and recalls them by
topic or semantic similarity, so a coding assistant doesn't relitigate a
choice that was already settled.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		cfg, warnings, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		for _, w := range warnings {
			slog.Warn(w)
		}
		rootCtx = context.Background()
		eng, err = engine.Open(rootCtx, cfg, slog.Default())
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eng != nil {
			_ = eng.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON instead of human-readable text")
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(outcomeCmd)
}

func main() {
	setupLogging()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
