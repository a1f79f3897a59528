package dev

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestRouter(t *testing.T, watching bool) (*Router, *Hub) {
	t.Helper()
	hub := NewHub(testLogger(t), nil)
	static := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "static "+r.URL.Path)
	})
	rt := NewRouter(RouterConfig{
		Reload:   "/__reload",
		Watching: watching,
		CORS:     "*",
		Logger:   testLogger(t),
	}, hub, static)
	return rt, hub
}

func TestRouter_StaticGetsCORSHeader(t *testing.T) {
	rt, _ := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))

	if rec.Body.String() != "static /index.html" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestRouter_ReloadPathIsStaticWithoutBindings(t *testing.T) {
	rt, hub := newTestRouter(t, false)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__reload", nil))

	if rec.Body.String() != "static /__reload" {
		t.Errorf("body = %q, want static response", rec.Body.String())
	}
	if hub.Count() != 0 {
		t.Error("no subscriber should be registered")
	}
}

func TestRouter_QueryStringIgnored(t *testing.T) {
	rt, hub := newTestRouter(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/__reload?ts=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.ServeHTTP(rec, req)
	}()

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	cancel()
	<-done
}

func TestRouter_EventStreamHeaders(t *testing.T) {
	rt, hub := newTestRouter(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/__reload", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.ServeHTTP(rec, req)
	}()

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client disconnect")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	wantHeaders := map[string]string{
		"Connection":    "keep-alive",
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
	}
	for k, want := range wantHeaders {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if rec.Body.String() != "\n" {
		t.Errorf("body = %q, want a single blank line", rec.Body.String())
	}
	if hub.Count() != 0 {
		t.Errorf("Count() = %d after disconnect, want 0", hub.Count())
	}
}

func TestRouter_EventStreamDelivers(t *testing.T) {
	rt, hub := newTestRouter(t, true)
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	resp, err := http.Get(srv.URL + "/__reload")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, err := r.ReadString('\n'); err != nil || line != "\n" {
		t.Fatalf("first line = %q, %v; want blank line", line, err)
	}

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	hub.Broadcast("src/app.js")
	hub.Broadcast("style.css")

	for _, want := range []string{"data: src/app.js\n", "\n", "data: style.css\n", "\n"} {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line != want {
			t.Errorf("line = %q, want %q", line, want)
		}
	}
}

func TestRouter_EventStreamBurst(t *testing.T) {
	rt, hub := newTestRouter(t, true)
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	resp, err := http.Get(srv.URL + "/__reload")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatal(err)
	}
	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })

	const n = 40
	for i := 0; i < n; i++ {
		hub.Broadcast(fmt.Sprintf("file%d.js", i))
	}

	for i := 0; i < n; i++ {
		want := fmt.Sprintf("data: file%d.js\n", i)
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if line != want {
			t.Fatalf("event %d = %q, want %q", i, line, want)
		}
		if _, err := r.ReadString('\n'); err != nil {
			t.Fatalf("event %d terminator: %v", i, err)
		}
	}
	if hub.Count() != 1 {
		t.Errorf("Count() = %d after burst, want 1", hub.Count())
	}
}

func TestRouter_HubCloseFlushesQueuedEvents(t *testing.T) {
	rt, hub := newTestRouter(t, true)
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/__reload")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	for i := 0; i < 20; i++ {
		hub.Broadcast("a.css")
	}
	hub.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(body), "data: a.css\n\n"); got != 20 {
		t.Errorf("delivered %d events before close, want 20", got)
	}
}

func TestRouter_HubCloseEndsStream(t *testing.T) {
	rt, hub := newTestRouter(t, true)
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/__reload")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	hub.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "\n" {
		t.Errorf("body = %q", body)
	}
}

func TestRouter_WebSocket(t *testing.T) {
	rt, hub := newTestRouter(t, true)
	srv := httptest.NewServer(rt)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/__reload"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return hub.Count() == 1 })
	hub.Broadcast("site.css")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ReloadMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != ReloadTypeFull || msg.File != "site.css" {
		t.Errorf("message = %+v", msg)
	}

	conn.Close()
	eventually(t, 2*time.Second, func() bool { return hub.Count() == 0 })
}

func TestRouter_ClientScript(t *testing.T) {
	rt, _ := newTestRouter(t, true)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__reload.js", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/javascript") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `new EventSource("/__reload")`) {
		t.Errorf("script does not subscribe to /__reload:\n%s", body)
	}
}

func TestRouter_ClientScriptNeedsBindings(t *testing.T) {
	rt, _ := newTestRouter(t, false)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__reload.js", nil))

	if rec.Body.String() != "static /__reload.js" {
		t.Errorf("body = %q, want static response", rec.Body.String())
	}
}
