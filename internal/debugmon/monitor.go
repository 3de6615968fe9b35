package debugmon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/ocx/ddscore/internal/domain"
	"github.com/ocx/ddscore/pkg/plugins"
)

// Monitor serves one-shot text dumps of a domain's live state over a plain
// TCP listener: each accepted connection gets the full Dump output,
// newline-framed, then the connection is closed. No command parsing,
// mirroring q_debmon.c's fixed dump-then-close behavior.
type Monitor struct {
	domain   *domain.Domain
	plugins  *plugins.Registry
	logger   *slog.Logger
	feed     *Feed
}

// NewMonitor constructs a debug monitor over d. registry may be nil if no
// plugins are registered. feed may be nil to disable the websocket
// live-tail push.
func NewMonitor(d *domain.Domain, registry *plugins.Registry, feed *Feed, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{domain: d, plugins: registry, feed: feed, logger: logger}
}

// Serve accepts connections on ln until ctx is cancelled, writing one dump
// per connection.
func (m *Monitor) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("debugmon: accept: %w", err)
			}
		}
		go m.handle(conn)
	}
}

func (m *Monitor) handle(conn net.Conn) {
	defer conn.Close()

	lines := Dump(m.domain, m.plugins)
	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			m.logger.Error("debugmon: write failed", "peer", conn.RemoteAddr(), "error", err)
			return
		}
	}
	if err := w.Flush(); err != nil {
		m.logger.Error("debugmon: flush failed", "peer", conn.RemoteAddr(), "error", err)
		return
	}

	if m.feed != nil {
		m.feed.Publish(strings.Join(lines, "\n"))
	}
}
