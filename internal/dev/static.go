package dev

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vango-dev/servedev/internal/config"
)

// StaticHandler serves files below a root directory.
type StaticHandler struct {
	root    string
	options config.StaticOptions
	files   http.Handler
}

// NewStaticHandler creates a file server for root with the given options.
func NewStaticHandler(root string, options config.StaticOptions) *StaticHandler {
	return &StaticHandler{
		root:    root,
		options: options,
		files:   http.FileServer(http.Dir(root)),
	}
}

// ServeHTTP implements http.Handler.
//
// Order of evaluation:
//   - header rules are applied for the requested path
//   - a request for a missing file is rewritten by the first matching rule,
//     or with cleanUrls resolved to "<path>.html"
//   - with cleanUrls, "/x.html" redirects to "/x"
//   - directories without index.html answer 404 when listing is disabled
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only serve GET and HEAD requests for static files
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel, ok := requestRelPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	h.applyHeaders(w, rel)

	info, err := os.Stat(h.fsPath(rel))
	if err != nil {
		if dest, ok := h.rewrite(rel); ok {
			h.serveTarget(w, r, dest)
			return
		}
		if h.options.CleanURLs && path.Ext(rel) == "" && h.isFile(rel+".html") {
			h.serveTarget(w, r, rel+".html")
			return
		}
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		if !h.options.DirectoryListing && !h.isFile(path.Join(rel, "index.html")) {
			http.NotFound(w, r)
			return
		}
	} else if h.options.CleanURLs && path.Ext(rel) == ".html" && path.Base(rel) != "index.html" {
		target := "/" + strings.TrimSuffix(rel, ".html")
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	h.files.ServeHTTP(w, r)
}

// serveTarget serves rel in place of the requested path.
func (h *StaticHandler) serveTarget(w http.ResponseWriter, r *http.Request, rel string) {
	info, err := os.Stat(h.fsPath(rel))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		if !h.options.DirectoryListing && !h.isFile(path.Join(rel, "index.html")) {
			http.NotFound(w, r)
			return
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + rel + "/"
		r2.URL.RawPath = ""
		h.files.ServeHTTP(w, r2)
		return
	}

	f, err := os.Open(h.fsPath(rel))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *StaticHandler) applyHeaders(w http.ResponseWriter, rel string) {
	for _, rule := range h.options.Headers {
		if !matchSource(rule.Source, rel) {
			continue
		}
		for _, header := range rule.Headers {
			w.Header().Set(header.Key, header.Value)
		}
	}
}

func (h *StaticHandler) rewrite(rel string) (string, bool) {
	for _, rule := range h.options.Rewrites {
		if !matchSource(rule.Source, rel) {
			continue
		}
		dest, ok := requestRelPath("/" + strings.TrimPrefix(rule.Destination, "/"))
		if !ok {
			return "", false
		}
		return dest, true
	}
	return "", false
}

func (h *StaticHandler) isFile(rel string) bool {
	info, err := os.Stat(h.fsPath(rel))
	return err == nil && info.Mode().IsRegular()
}

func (h *StaticHandler) fsPath(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

// matchSource matches a serve.json glob against a root relative path.
func matchSource(source, rel string) bool {
	matched, err := doublestar.Match(strings.TrimPrefix(source, "/"), rel)
	return err == nil && matched
}

// requestRelPath returns a sanitized relative path for a request path; the
// root itself is "". It rejects traversal and absolute-path tricks so static
// serving cannot escape the root directory.
func requestRelPath(urlPath string) (string, bool) {
	if !strings.HasPrefix(urlPath, "/") {
		return "", false
	}
	rel := strings.TrimPrefix(urlPath, "/")
	if rel == "" {
		return "", true
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}

	// Reject platform-dependent separators.
	if strings.Contains(rel, "\\") {
		return "", false
	}

	// A second leading "/" indicates an absolute-path attempt.
	if strings.HasPrefix(rel, "/") {
		return "", false
	}

	// Reject dot-segments before cleaning to avoid "cleaning away" traversal
	// attempts and changing the meaning of the request path.
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}

	return clean, true
}
