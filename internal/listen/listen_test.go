package listen

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serveerrors "github.com/vango-dev/servedev/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Target
	}{
		{name: "bare port", input: "8080", want: Target{Kind: KindTCP, Port: 8080}},
		{name: "bare zero", input: "0", want: Target{Kind: KindTCP, Port: 0}},
		{name: "tcp default port", input: "tcp://host", want: Target{Kind: KindTCP, Port: 3000, Host: "host"}},
		{name: "tcp explicit port", input: "tcp://host:8080", want: Target{Kind: KindTCP, Port: 8080, Host: "host"}},
		{name: "tcp any host", input: "tcp://:9000", want: Target{Kind: KindTCP, Port: 9000}},
		{name: "tcp ipv6", input: "tcp://[::1]:4000", want: Target{Kind: KindTCP, Port: 4000, Host: "::1"}},
		{name: "tcp upper case scheme", input: "TCP://localhost", want: Target{Kind: KindTCP, Port: 3000, Host: "localhost"}},
		{name: "unix absolute", input: "unix:/tmp/s.sock", want: Target{Kind: KindUnix, Path: "/tmp/s.sock"}},
		{name: "unix authority form", input: "unix:///tmp/s.sock", want: Target{Kind: KindUnix, Path: "/tmp/s.sock"}},
		{name: "unix relative", input: "unix:serve.sock", want: Target{Kind: KindUnix, Path: "serve.sock"}},
		{name: "pipe", input: `pipe:\\.\pipe\foo`, want: Target{Kind: KindPipe, Path: `\\.\pipe\foo`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_BarePorts(t *testing.T) {
	for _, n := range []int{1, 80, 443, 3000, 65535} {
		got, err := Parse(strconv.Itoa(n))
		require.NoError(t, err)
		assert.Equal(t, Target{Kind: KindTCP, Port: n}, got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		code     string
		contains string
	}{
		{name: "unix without path", input: "unix:", code: serveerrors.CodeInvalidSocket},
		{name: "pipe without prefix", input: "pipe:notwindows", code: serveerrors.CodeInvalidPipe},
		{name: "unknown scheme", input: "ftp://x", code: serveerrors.CodeUnknownScheme, contains: "ftp:"},
		{name: "host only", input: "localhost:3000", code: serveerrors.CodeUnknownScheme, contains: "localhost:"},
		{name: "no scheme", input: "nothing", code: serveerrors.CodeUnknownScheme},
		{name: "negative port", input: "-1", code: serveerrors.CodeInvalidPort},
		{name: "port too large", input: "70000", code: serveerrors.CodeInvalidPort},
		{name: "tcp port too large", input: "tcp://host:70000", code: serveerrors.CodeInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, serveerrors.HasCode(err, tt.code), "want code %s, got %v", tt.code, err)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestTarget_Address(t *testing.T) {
	assert.Equal(t, "localhost:3000", Target{Kind: KindTCP, Host: "localhost", Port: 3000}.Address())
	assert.Equal(t, ":8080", Target{Kind: KindTCP, Port: 8080}.Address())
	assert.Equal(t, "[::1]:80", Target{Kind: KindTCP, Host: "::1", Port: 80}.Address())
	assert.Equal(t, "/tmp/s.sock", Target{Kind: KindUnix, Path: "/tmp/s.sock"}.Address())

	assert.Equal(t, "tcp", Target{Kind: KindTCP}.Network())
	assert.Equal(t, "unix", Target{Kind: KindUnix}.Network())
	assert.Equal(t, "pipe", Target{Kind: KindPipe}.Network())
}

func TestTarget_StringRoundTrip(t *testing.T) {
	for _, input := range []string{"tcp://localhost:3000", "unix:/tmp/s.sock", `pipe:\\.\pipe\foo`} {
		target, err := Parse(input)
		require.NoError(t, err)
		again, err := Parse(target.String())
		require.NoError(t, err)
		assert.Equal(t, target, again)
	}
}

func TestListen_TCP(t *testing.T) {
	ln, err := Listen(context.Background(), Target{Kind: KindTCP, Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, addr.Port)
}

func TestListen_Unix(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	if len(sock) > 100 {
		t.Skip("socket path too long for this platform")
	}

	ln, err := Listen(context.Background(), Target{Kind: KindUnix, Path: sock})
	require.NoError(t, err)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	conn.Close()
	ln.Close()
}

func TestListen_TCPInUse(t *testing.T) {
	first, err := Listen(context.Background(), Target{Kind: KindTCP, Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer first.Close()

	port := first.Addr().(*net.TCPAddr).Port
	_, err = Listen(context.Background(), Target{Kind: KindTCP, Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.True(t, serveerrors.HasCode(err, serveerrors.CodeListenFailed))
}
