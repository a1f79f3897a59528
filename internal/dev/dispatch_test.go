package dev

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/servedev/internal/config"
)

type fakeHub struct {
	mu       sync.Mutex
	payloads []string
}

func (h *fakeHub) Broadcast(payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
}

func (h *fakeHub) sent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.payloads...)
}

type fakeBuilder struct {
	mu        sync.Mutex
	targets   []string
	callbacks []func(BuildResult)
}

func (b *fakeBuilder) Run(target string, onComplete func(BuildResult)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, target)
	b.callbacks = append(b.callbacks, onComplete)
}

func (b *fakeBuilder) complete(i int, r BuildResult) {
	b.mu.Lock()
	cb := b.callbacks[i]
	b.mu.Unlock()
	cb(r)
}

func newTestDispatcher(t *testing.T, metrics *Metrics) (*Dispatcher, *fakeHub, *fakeBuilder) {
	hub := &fakeHub{}
	builder := &fakeBuilder{}
	d := NewDispatcher(DispatcherConfig{
		Hub:     hub,
		Builder: builder,
		Program: "make",
		Logger:  testLogger(t),
		Metrics: metrics,
	})
	return d, hub, builder
}

func TestDispatcher_NoTargetBroadcastsImmediately(t *testing.T) {
	d, hub, builder := newTestDispatcher(t, nil)

	d.HandleChange(config.Binding{Pattern: "*.css"}, "site.css")

	if len(builder.targets) != 0 {
		t.Errorf("builds = %v, want none", builder.targets)
	}
	if got := hub.sent(); len(got) != 1 || got[0] != "site.css" {
		t.Errorf("broadcasts = %v, want [site.css]", got)
	}
}

func TestDispatcher_TargetBroadcastsAfterBuild(t *testing.T) {
	d, hub, builder := newTestDispatcher(t, nil)

	d.HandleChange(config.Binding{Pattern: "src/**", Target: "bundle"}, "src/a.js")

	if len(builder.targets) != 1 || builder.targets[0] != "bundle" {
		t.Fatalf("builds = %v, want [bundle]", builder.targets)
	}
	if got := hub.sent(); len(got) != 0 {
		t.Fatalf("broadcast before build finished: %v", got)
	}

	builder.complete(0, BuildResult{Target: "bundle", ExitCode: 2, Err: errors.New("exit status 2")})

	if got := hub.sent(); len(got) != 1 || got[0] != "src/a.js" {
		t.Errorf("broadcasts = %v, want [src/a.js]", got)
	}
}

func TestDispatcher_RapidChangesBuildTwice(t *testing.T) {
	d, hub, builder := newTestDispatcher(t, nil)
	binding := config.Binding{Pattern: "src/**", Target: "bundle"}

	d.HandleChange(binding, "src/a.js")
	d.HandleChange(binding, "src/b.js")

	if len(builder.targets) != 2 {
		t.Fatalf("builds = %v, want two", builder.targets)
	}

	builder.complete(1, BuildResult{Target: "bundle"})
	builder.complete(0, BuildResult{Target: "bundle"})

	got := hub.sent()
	if len(got) != 2 || got[0] != "src/b.js" || got[1] != "src/a.js" {
		t.Errorf("broadcasts = %v, want [src/b.js src/a.js]", got)
	}
}

func TestDispatcher_CountsChanges(t *testing.T) {
	registry := prometheus.NewRegistry()
	d, _, _ := newTestDispatcher(t, NewMetrics(registry))

	d.HandleChange(config.Binding{Pattern: "*.css"}, "a.css")
	d.HandleChange(config.Binding{Pattern: "*.css"}, "b.css")
	d.HandleChange(config.Binding{Pattern: "src/**", Target: "js"}, "src/a.js")

	if got := metricValue(t, registry, "servedev_changes_total", map[string]string{"pattern": "*.css"}); got != 2 {
		t.Errorf("changes for *.css = %v, want 2", got)
	}
	if got := metricValue(t, registry, "servedev_changes_total", map[string]string{"pattern": "src/**"}); got != 1 {
		t.Errorf("changes for src/** = %v, want 1", got)
	}
}
