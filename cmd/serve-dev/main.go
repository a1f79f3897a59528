package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vango-dev/servedev/internal/config"
	"github.com/vango-dev/servedev/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if !isTerminal(os.Stderr) {
		errors.DisableColors()
	}

	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-dev [flags] [root]",
		Short: "Static development server with watch, rebuild and live reload",
		Long: `serve-dev serves a directory over HTTP and reloads connected browsers
when watched files change.

Each --watch pattern may be paired with the --make target at the same
position; a change then runs "<program> <target>" before browsers are
notified. Browsers subscribe by requesting the reload path, or by
including the reload path with a .js suffix as a script.

Options are read from serve.json when present; explicit flags win.

Examples:
  serve-dev public
  serve-dev --listen 8080 --watch 'src/**/*.js' --make bundle
  serve-dev --listen unix:/tmp/serve.sock --watch '*.css'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.AddCommand(versionCmd())

	return cmd
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
