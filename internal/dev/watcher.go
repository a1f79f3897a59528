package dev

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/vango-dev/servedev/internal/errors"
)

// WatcherConfig configures a file watcher.
type WatcherConfig struct {
	// Pattern is a file, a directory, or a doublestar glob such as "src/**/*.js".
	Pattern string

	// Ignore patterns to skip (names, path segments or globs).
	Ignore []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultIgnore contains editor and VCS noise that never triggers a change.
var DefaultIgnore = []string{
	".git",
	".hg",
	".svn",
	".DS_Store",
	"*.swp",
	"*.swx",
	"*~",
	"#*#",
	".#*",
	"4913",
}

// Watcher reports changes under one watch pattern.
type Watcher struct {
	config    WatcherConfig
	base      string
	glob      string
	recursive bool
	fsw       *fsnotify.Watcher
	onChange  func(path string)
	logger    *slog.Logger
}

// NewWatcher resolves the pattern and starts watching its directories.
// Events are delivered to onChange once Run is called.
func NewWatcher(config WatcherConfig, onChange func(path string)) (*Watcher, error) {
	if config.Ignore == nil {
		config.Ignore = DefaultIgnore
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base, glob := splitPattern(config.Pattern)
	if !doublestar.ValidatePattern(glob) {
		return nil, errors.New(errors.CodeWatchSetupFailed).
			WithDetailf("invalid pattern %q", config.Pattern)
	}

	info, err := os.Stat(base)
	if err != nil {
		return nil, errors.New(errors.CodeWatchSetupFailed).
			WithDetailf("cannot watch %q", config.Pattern).
			Wrap(err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.CodeWatchSetupFailed).
			WithDetailf("%s is not a directory", base)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.New(errors.CodeWatchSetupFailed).Wrap(err)
	}

	w := &Watcher{
		config:    config,
		base:      base,
		glob:      glob,
		recursive: strings.Contains(glob, "/") || strings.Contains(glob, "**"),
		fsw:       fsw,
		onChange:  onChange,
		logger:    logger,
	}

	if err := w.addTree(base); err != nil {
		fsw.Close()
		return nil, errors.New(errors.CodeWatchSetupFailed).
			WithDetailf("cannot watch %q", config.Pattern).
			Wrap(err)
	}

	return w, nil
}

// Run delivers matching events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "pattern", w.config.Pattern, "err", err)
		}
	}
}

// Close stops watching. Run returns afterwards.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Match reports whether a path belongs to the watch pattern.
func (w *Watcher) Match(p string) bool {
	rel, err := filepath.Rel(w.base, filepath.Clean(p))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	if shouldIgnore(rel, w.config.Ignore) {
		return false
	}
	matched, err := doublestar.Match(w.glob, rel)
	return err == nil && matched
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	name := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Create) && w.recursive {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := w.addTree(name); err != nil {
				w.logger.Debug("cannot watch directory", "path", name, "err", err)
			}
		}
	}

	if !w.Match(name) {
		return
	}
	w.logger.Debug("change", "pattern", w.config.Pattern, "op", ev.Op.String(), "path", name)
	if w.onChange != nil {
		w.onChange(name)
	}
}

// addTree watches root and, for recursive patterns, every directory below it.
func (w *Watcher) addTree(root string) error {
	if !w.recursive {
		return w.fsw.Add(root)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root {
			if rel, err := filepath.Rel(w.base, p); err == nil && shouldIgnore(filepath.ToSlash(rel), w.config.Ignore) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(p); err != nil {
			if p == root {
				return err
			}
			w.logger.Debug("cannot watch directory", "path", p, "err", err)
		}
		return nil
	})
}

// splitPattern separates the static directory of a pattern from its glob.
// A pattern without metacharacters names a directory (everything below it
// matches) or a single file.
func splitPattern(pattern string) (base, glob string) {
	slashed := filepath.ToSlash(pattern)
	if strings.ContainsAny(slashed, "*?[{") {
		base, glob = doublestar.SplitPattern(slashed)
		return filepath.FromSlash(base), glob
	}

	clean := filepath.Clean(pattern)
	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		return clean, "**"
	}
	return filepath.Dir(clean), filepath.Base(clean)
}

// shouldIgnore checks if a slash separated path should be ignored.
func shouldIgnore(normalized string, ignore []string) bool {
	name := path.Base(normalized)

	for _, pattern := range ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		// Direct match
		if name == pattern {
			return true
		}

		hasPathSep := strings.Contains(pattern, "/")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		if hasGlob {
			if hasPathSep {
				if matched, _ := doublestar.Match(pattern, normalized); matched {
					return true
				}
			} else {
				for _, part := range splitPathSegments(normalized) {
					if matched, _ := path.Match(pattern, part); matched {
						return true
					}
				}
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, pattern) {
				return true
			}
			continue
		}

		if pathHasSegment(normalized, pattern) {
			return true
		}
	}

	return false
}

func pathHasSegment(p, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range splitPathSegments(p) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(p, pattern string) bool {
	pathParts := splitPathSegments(p)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
