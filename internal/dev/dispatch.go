package dev

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/vango-dev/servedev/internal/config"
)

// Broadcaster delivers a reload notification to subscribers.
type Broadcaster interface {
	Broadcast(payload string)
}

// BuildRunner starts a build and reports its completion.
type BuildRunner interface {
	Run(target string, onComplete func(BuildResult))
}

// DispatcherConfig configures change dispatch.
type DispatcherConfig struct {
	Hub     Broadcaster
	Builder BuildRunner

	// Program is only used in log output.
	Program string

	Logger  *slog.Logger
	Metrics *Metrics
}

// Dispatcher turns a file change into an optional build followed by a
// broadcast of the changed path.
type Dispatcher struct {
	config DispatcherConfig
	logger *slog.Logger
}

// NewDispatcher creates a new change dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{config: config, logger: logger}
}

// HandleChange reacts to a change of path observed for binding.
// Without a target the broadcast happens before HandleChange returns.
// With a target the build is started and the broadcast follows its
// completion, whether or not the build succeeded.
func (d *Dispatcher) HandleChange(binding config.Binding, path string) {
	shown := path
	if abs, err := filepath.Abs(path); err == nil {
		shown = abs
	}
	d.logger.Info("changed", "path", shown)
	d.config.Metrics.incChanges(binding.Pattern)

	if !binding.HasTarget() {
		d.config.Hub.Broadcast(path)
		return
	}

	d.logger.Info("building", "command", d.config.Program+" "+binding.Target)
	d.config.Builder.Run(binding.Target, func(result BuildResult) {
		if result.Err != nil {
			d.logger.Warn("build failed",
				"target", result.Target,
				"exit_code", result.ExitCode,
				"err", result.Err,
			)
		} else {
			d.logger.Info("built",
				"target", result.Target,
				"duration", result.Duration.Round(time.Millisecond),
			)
		}
		d.config.Hub.Broadcast(path)
	})
}
