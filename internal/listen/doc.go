// Package listen turns a --listen string into a concrete bind target.
//
// Accepted forms:
//
//	3000                      bare port, all interfaces
//	tcp://localhost:3000      TCP host and port (port defaults to 3000)
//	tcp://[::1]               IPv6 host, default port
//	unix:/tmp/serve.sock      UNIX domain socket
//	pipe:\\.\pipe\serve       Windows named pipe
//
// Parse is pure and has no side effects; Listen performs the bind.
package listen
