package dev

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ReloadMessageType represents the type of reload message.
type ReloadMessageType string

// ReloadTypeFull asks the browser for a full page reload.
const ReloadTypeFull ReloadMessageType = "reload"

// ReloadMessage is sent to browsers via WebSocket.
type ReloadMessage struct {
	Type ReloadMessageType `json:"type"`
	File string            `json:"file,omitempty"`
}

const wsWriteWait = 5 * time.Second

// RouterConfig configures request routing.
type RouterConfig struct {
	// Reload is the subscription path, e.g. "/__reload".
	Reload string

	// Watching enables the reload endpoints. Without any watch binding
	// the reload path is an ordinary static path.
	Watching bool

	// CORS is the Access-Control-Allow-Origin value for static responses.
	CORS string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Router sends reload subscriptions to the hub and every other request
// to the static handler.
type Router struct {
	config   RouterConfig
	hub      *Hub
	static   http.Handler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRouter creates a new request router.
func NewRouter(config RouterConfig, hub *Hub, static http.Handler) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		config: config,
		hub:    hub,
		static: static,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.config.Watching && r.URL.Path == rt.config.Reload {
		if websocket.IsWebSocketUpgrade(r) {
			rt.serveWebSocket(w, r)
			return
		}
		rt.serveEvents(w, r)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", rt.config.CORS)

	if rt.config.Watching && r.URL.Path == rt.config.Reload+".js" {
		rt.serveClientScript(w, r)
		return
	}

	rt.static.ServeHTTP(w, r)
}

// serveEvents holds an event stream open until the client goes away or
// the hub is closed.
func (rt *Router) serveEvents(w http.ResponseWriter, r *http.Request) {
	sink := newQueueSink()
	id := rt.hub.Subscribe(sink)
	defer rt.hub.Unsubscribe(id)

	h := w.Header()
	h.Set("Connection", "keep-alive")
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if _, err := io.WriteString(w, "\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		rt.logger.Debug("event stream not flushable", "err", err)
		return
	}

	write := func(events []Event) error {
		for _, ev := range events {
			if _, err := io.WriteString(w, ev.Frame()); err != nil {
				return err
			}
		}
		return rc.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sink.ready:
			if err := write(sink.take()); err != nil {
				return
			}
		case <-sink.done:
			write(sink.take())
			return
		}
	}
}

// serveWebSocket handles WebSocket upgrade and connection.
func (rt *Router) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	sink := newQueueSink()
	id := rt.hub.Subscribe(sink)
	defer rt.hub.Unsubscribe(id)

	// Keep reading until the client disconnects
	go func() {
		defer sink.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(events []Event) error {
		for _, ev := range events {
			data, err := json.Marshal(ReloadMessage{Type: ReloadTypeFull, File: ev.Data})
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-sink.ready:
			if err := write(sink.take()); err != nil {
				return
			}
		case <-sink.done:
			if err := write(sink.take()); err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (rt *Router) serveClientScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	io.WriteString(w, ClientScript(rt.config.Reload))
}
