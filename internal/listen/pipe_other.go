//go:build !windows

package listen

import (
	"net"

	serveerrors "github.com/vango-dev/servedev/internal/errors"
)

func listenPipe(path string) (net.Listener, error) {
	return nil, serveerrors.New(serveerrors.CodePipeUnsupported).
		WithDetailf("cannot listen on pipe:%s", path)
}
