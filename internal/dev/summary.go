package dev

import (
	"net"
	"strconv"
	"strings"

	"github.com/vango-dev/servedev/internal/config"
	"github.com/vango-dev/servedev/internal/listen"
)

const (
	colorReset  = "\033[0m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
)

// SummaryInfo is the content of the startup summary.
type SummaryInfo struct {
	// Public is the directory being served.
	Public string

	// Local is the address clients connect to.
	Local string

	// Reload is the subscription URL. Empty when nothing is watched.
	Reload string

	// Program runs build targets.
	Program string

	Bindings       []config.Binding
	UnboundTargets []string
}

// LocalURL formats the address a browser should use for the bound listener.
// Wildcard hosts are shown as localhost.
func LocalURL(https bool, target listen.Target, addr net.Addr) string {
	switch target.Kind {
	case listen.KindUnix:
		return "unix:" + target.Path
	case listen.KindPipe:
		return "pipe:" + target.Path
	}

	host, port := target.Host, target.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
		if host == "" {
			host = tcp.IP.String()
		}
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}

	scheme := "http"
	if https {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

type summaryWriter struct {
	color bool
	lines []string
}

func (s *summaryWriter) paint(code, text string) string {
	if !s.color {
		return text
	}
	return code + text + colorReset
}

func (s *summaryWriter) line(parts ...string) {
	s.lines = append(s.lines, strings.Join(parts, ""))
}

// RenderSummary renders the boxed startup message.
func RenderSummary(info SummaryInfo, color bool) string {
	s := &summaryWriter{color: color}
	blue := func(text string) string { return s.paint(colorBlue, text) }
	yellow := func(text string) string { return s.paint(colorYellow, text) }

	s.line(blue("Serving"))
	s.line()
	s.line("- Public:  ", blue(info.Public))
	s.line("- Local:   ", blue(info.Local))
	if info.Reload != "" {
		s.line("- Reload:  ", blue(info.Reload))
	}

	var (
		targets   []string
		patterns  = make(map[string][]string)
		unwatched []string
	)
	for _, b := range info.Bindings {
		if !b.HasTarget() {
			unwatched = append(unwatched, b.Pattern)
			continue
		}
		if _, seen := patterns[b.Target]; !seen {
			targets = append(targets, b.Target)
		}
		patterns[b.Target] = append(patterns[b.Target], b.Pattern)
	}
	for _, target := range info.UnboundTargets {
		if _, seen := patterns[target]; !seen {
			targets = append(targets, target)
			patterns[target] = nil
		}
	}

	if len(targets) > 0 || len(unwatched) > 0 {
		s.line()
		s.line(blue("Watching & Rebuilding"))
		s.line()
	}
	for _, target := range targets {
		command := strings.TrimSpace(info.Program + " " + target)
		if len(patterns[target]) == 0 {
			s.line("- Unavailable build ", yellow(command))
			continue
		}
		s.line("- Changing ", blue(strings.Join(patterns[target], ", ")), " builds ", blue(command))
	}
	for _, pattern := range unwatched {
		s.line("- Watching ", blue(pattern))
	}

	return s.box()
}

// box frames the lines with one line of vertical and three columns of
// horizontal padding, and a one line margin.
func (s *summaryWriter) box() string {
	width := 0
	for _, line := range s.lines {
		if w := visibleWidth(line); w > width {
			width = w
		}
	}

	inner := width + 6
	border := func(left, right string) string {
		return " " + s.paint(colorBlue, left+strings.Repeat("─", inner)+right)
	}
	side := s.paint(colorBlue, "│")
	row := func(text string) string {
		return " " + side + "   " + text + strings.Repeat(" ", width-visibleWidth(text)) + "   " + side
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(border("┌", "┐") + "\n")
	b.WriteString(row("") + "\n")
	for _, line := range s.lines {
		b.WriteString(row(line) + "\n")
	}
	b.WriteString(row("") + "\n")
	b.WriteString(border("└", "┘") + "\n")
	b.WriteString("\n")
	return b.String()
}

// visibleWidth counts runes outside ANSI escape sequences.
func visibleWidth(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\033':
			inEscape = true
		default:
			n++
		}
	}
	return n
}
