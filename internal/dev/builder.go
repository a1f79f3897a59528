package dev

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "servedev"

// BuilderConfig configures the build runner.
type BuilderConfig struct {
	// Program is the build executable, invoked as "<Program> <target>".
	Program string

	// Stdin, Stdout and Stderr default to the host's streams. Streams
	// that are not files are shared between builds under a lock.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
}

// BuildResult describes one finished build.
type BuildResult struct {
	// Target is the argument the program was invoked with.
	Target string

	// ExitCode is the process exit status, or -1 if it never ran to completion.
	ExitCode int

	// Duration is how long the build took.
	Duration time.Duration

	// Err is the spawn or exit error, if any.
	Err error
}

// Success reports whether the build exited with status 0.
func (r BuildResult) Success() bool {
	return r.Err == nil
}

// Builder runs build commands. Builds are independent: they are neither
// serialized nor cancelled.
type Builder struct {
	config BuilderConfig
	logger *slog.Logger
	tracer trace.Tracer
	wg     sync.WaitGroup
}

// NewBuilder creates a new build runner.
func NewBuilder(config BuilderConfig) *Builder {
	if config.Stdin == nil {
		config.Stdin = os.Stdin
	}
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}

	// Concurrent builds share these streams. exec hands files to the child
	// and copies anything else from a goroutine per build.
	if _, ok := config.Stdin.(*os.File); !ok {
		config.Stdin = &lockedReader{r: config.Stdin}
	}
	out := &sync.Mutex{}
	if _, ok := config.Stdout.(*os.File); !ok {
		config.Stdout = &lockedWriter{mu: out, w: config.Stdout}
	}
	if _, ok := config.Stderr.(*os.File); !ok {
		config.Stderr = &lockedWriter{mu: out, w: config.Stderr}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		config: config,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Run starts "<program> <target>" and returns immediately. onComplete is
// called exactly once from the build goroutine when the process ends,
// whatever its exit status, including when it could not be started.
func (b *Builder) Run(target string, onComplete func(BuildResult)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		result := b.build(target)
		if onComplete != nil {
			onComplete(result)
		}
	}()
}

// Wait blocks until every started build has finished and its
// continuation has returned.
func (b *Builder) Wait() {
	b.wg.Wait()
}

func (b *Builder) build(target string) BuildResult {
	_, span := b.tracer.Start(
		context.Background(),
		"build",
		trace.WithAttributes(
			attribute.String("build.program", b.config.Program),
			attribute.String("build.target", target),
		),
	)
	defer span.End()

	start := time.Now()

	cmd := exec.Command(b.config.Program, target)
	cmd.Stdin = b.config.Stdin
	cmd.Stdout = b.config.Stdout
	cmd.Stderr = b.config.Stderr

	err := cmd.Run()
	result := BuildResult{
		Target:   target,
		Duration: time.Since(start),
		Err:      err,
	}

	status := "success"
	if err != nil {
		status = "failure"
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("build.exit_code", result.ExitCode))

	b.config.Metrics.observeBuild(target, status, result.Duration)
	b.logger.Debug("build finished",
		"target", target,
		"exit_code", result.ExitCode,
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
