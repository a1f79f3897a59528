package listen

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	serveerrors "github.com/vango-dev/servedev/internal/errors"
)

// DefaultPort is used for tcp: endpoints without an explicit port.
const DefaultPort = 3000

// pipePrefix is the literal prefix every Windows named pipe path starts with.
const pipePrefix = `\\.\`

// Kind identifies the transport of a Target.
type Kind int

const (
	KindTCP Kind = iota
	KindUnix
	KindPipe
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUnix:
		return "unix"
	case KindPipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// Target is a parsed bind address.
type Target struct {
	Kind Kind

	// Port and Host are set for KindTCP. An empty Host binds every interface.
	Port int
	Host string

	// Path is the socket path for KindUnix or the pipe path for KindPipe.
	Path string
}

// Network returns the net.Listen network name for the target.
func (t Target) Network() string {
	return t.Kind.String()
}

// Address returns the net.Listen address for the target.
func (t Target) Address() string {
	if t.Kind == KindTCP {
		return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	}
	return t.Path
}

// String renders the target in the form Parse accepts.
func (t Target) String() string {
	switch t.Kind {
	case KindUnix:
		return "unix:" + t.Path
	case KindPipe:
		return "pipe:" + t.Path
	default:
		return "tcp://" + t.Address()
	}
}

// Parse parses a listen string into a Target.
func Parse(s string) (Target, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if err := checkPort(s, n); err != nil {
			return Target{}, err
		}
		return Target{Kind: KindTCP, Port: n}, nil
	}

	scheme := schemeOf(s)

	switch scheme {
	case "pipe:":
		rest := s[len(scheme):]
		if !strings.HasPrefix(rest, pipePrefix) {
			return Target{}, serveerrors.New(serveerrors.CodeInvalidPipe).
				WithDetailf("%s does not start with %s", s, pipePrefix).
				WithSuggestion(`Use pipe:\\.\pipe\<name>`)
		}
		return Target{Kind: KindPipe, Path: rest}, nil

	case "unix:":
		u, err := url.Parse(s)
		if err != nil {
			return Target{}, serveerrors.New(serveerrors.CodeInvalidSocket).
				WithDetailf("%s is not a valid URI", s).
				Wrap(err)
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return Target{}, serveerrors.New(serveerrors.CodeInvalidSocket).
				WithDetailf("%s has no socket path", s).
				WithSuggestion("Use unix:/path/to/serve.sock")
		}
		return Target{Kind: KindUnix, Path: path}, nil

	case "tcp:":
		u, err := url.Parse(s)
		if err != nil {
			return Target{}, serveerrors.New(serveerrors.CodeInvalidPort).
				WithDetailf("%s is not a valid URI", s).
				Wrap(err)
		}
		port := DefaultPort
		if p := u.Port(); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return Target{}, serveerrors.New(serveerrors.CodeInvalidPort).
					WithDetailf("%q in %s is not a number", p, s)
			}
			if err := checkPort(s, n); err != nil {
				return Target{}, err
			}
			port = n
		}
		return Target{Kind: KindTCP, Port: port, Host: u.Hostname()}, nil

	default:
		return Target{}, serveerrors.New(serveerrors.CodeUnknownScheme).
			WithDetailf("unsupported scheme %s in %q", scheme, s).
			WithSuggestion(`Use a port, tcp://host:port, unix:/path/to.sock or pipe:\\.\pipe\name`)
	}
}

// schemeOf returns the lower-cased URI scheme of s including the trailing
// colon, or ":" when s has none.
func schemeOf(s string) string {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return ":"
	}
	for j, c := range s[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9', c == '+', c == '-', c == '.':
			if j == 0 {
				return ":"
			}
		default:
			return ":"
		}
	}
	return strings.ToLower(s[:i+1])
}

func checkPort(s string, n int) error {
	if n < 0 || n > 65535 {
		return serveerrors.New(serveerrors.CodeInvalidPort).
			WithDetailf("%d in %q is outside 0-65535", n, s)
	}
	return nil
}

// Listen binds the target. A stale socket file left behind by a previous run
// is removed before binding a UNIX socket.
func Listen(ctx context.Context, t Target) (net.Listener, error) {
	var (
		ln  net.Listener
		err error
	)

	switch t.Kind {
	case KindPipe:
		ln, err = listenPipe(t.Path)
	case KindUnix:
		removeStaleSocket(t.Path)
		var lc net.ListenConfig
		ln, err = lc.Listen(ctx, "unix", t.Path)
	default:
		var lc net.ListenConfig
		ln, err = lc.Listen(ctx, "tcp", t.Address())
	}
	if err != nil {
		if serveerrors.HasCode(err, serveerrors.CodePipeUnsupported) {
			return nil, err
		}
		return nil, serveerrors.New(serveerrors.CodeListenFailed).
			WithDetailf("cannot listen on %s", t).
			Wrap(err)
	}
	return ln, nil
}

func removeStaleSocket(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode().Type() != fs.ModeSocket {
		return
	}
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return
	}
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	_ = os.Remove(path)
}
