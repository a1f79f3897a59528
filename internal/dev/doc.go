// Package dev implements the serve-dev development server.
//
// # Architecture
//
// The server consists of several components:
//
//   - Watcher: reports file changes matching one watch pattern (fsnotify)
//   - Dispatcher: turns a change into a build and/or a reload notification
//   - Builder: runs the build program for a target, never cancelled
//   - Hub: fans reload notifications out to every connected browser
//   - Router: sends the reload path to the Hub, everything else to the StaticHandler
//   - Server: wires the above together and listens on the configured target
//
// # Usage
//
//	cfg, err := config.Load(cmd.Flags(), args)
//	if err != nil {
//	    return err
//	}
//
//	srv := dev.NewServer(dev.ServerOptions{Config: cfg})
//	return srv.Start(ctx)
//
// # Reload Protocol
//
// Browsers subscribe by requesting the reload path (default /__reload).
// Plain requests receive a text/event-stream; after an initial blank line
// every change is written as
//
//	data: <changed path>
//
// followed by a blank line. WebSocket upgrade requests on the same path
// receive one JSON text message per change:
//
//	{"type": "reload", "file": "<changed path>"}
//
// The reload path with a .js suffix serves a small EventSource client that
// reloads the page on every event.
package dev
