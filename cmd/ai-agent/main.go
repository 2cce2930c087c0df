// Package main provides the CLI entry point for the agent engine: a
// single-shot mode (`ai-agent "do something"`) and an interactive REPL
// with slash commands for session management.
//
// Configuration is read from <cwd>/.ai-agent/config.toml layered over the
// platform config directory; the API key falls back to API_KEY,
// ANTHROPIC_API_KEY, or OPENAI_API_KEY in the environment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/ai-agent/internal/config"
	"github.com/haasonsaas/ai-agent/internal/engine"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var cwd string

	cmd := &cobra.Command{
		Use:   "ai-agent [prompt]",
		Short: "Interactive coding agent",
		Long: "Drives an LLM-backed coding agent over your working directory.\n" +
			"With a prompt argument it runs once and exits; without one it\n" +
			"starts an interactive session.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cwd == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				cwd = wd
			}
			if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
				return fmt.Errorf("working directory %q does not exist", cwd)
			}

			cfg, err := config.LoadWithPrecedence(cwd)
			if err != nil {
				return err
			}
			configureLogging(cfg)

			session, err := engine.New(cfg, slog.Default())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := session.Initialize(ctx); err != nil {
				session.Close()
				return err
			}
			defer session.Close()

			if len(args) == 1 {
				return runOnce(ctx, session, args[0])
			}
			return runREPL(ctx, session)
		},
	}

	cmd.Flags().StringVarP(&cwd, "cwd", "c", "", "working directory (default: current directory)")
	return cmd
}

func configureLogging(cfg *config.Config) {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
