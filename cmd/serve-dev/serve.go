package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/vango-dev/servedev/internal/config"
	"github.com/vango-dev/servedev/internal/dev"
	"github.com/vango-dev/servedev/internal/errors"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags(), args)
	if err != nil {
		return err
	}

	color := !cfg.NoColor && isTerminal(os.Stdout)
	if cfg.NoColor {
		errors.DisableColors()
	}

	logger := newLogger(os.Stderr, cfg.Verbose, !cfg.NoColor && isTerminal(os.Stderr))
	slog.SetDefault(logger)

	if !cfg.ConfigLoaded {
		logger.Debug("no config file", "path", cfg.ConfigPath)
	}

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := dev.NewServer(dev.ServerOptions{
		Config: cfg,
		Logger: logger,
		Output: cmd.OutOrStdout(),
		Color:  color,
	})
	return srv.Start(ctx)
}

// newLogger returns the console logger: info by default, debug when verbose.
func newLogger(w io.Writer, verbose, color bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
		NoColor:    !color,
	}))
}
