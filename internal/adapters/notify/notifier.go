// Package notify shows transient user-facing messages. The daemon has no UI
// so messages go to the log and, when attached, to connected operators.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lcalzada-xor/geotrack/internal/core/ports"
)

// Broadcaster relays a message to connected clients.
type Broadcaster interface {
	BroadcastNotice(message string)
}

// Notifier implements ports.Notifier.
type Notifier struct {
	Logger      *slog.Logger
	Broadcaster Broadcaster

	mu   sync.Mutex
	sent []string
}

var _ ports.Notifier = (*Notifier)(nil)

// New creates a notifier that logs through logger, or slog.Default when nil.
func New(logger *slog.Logger, b Broadcaster) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{Logger: logger, Broadcaster: b}
}

// Notify shows message once.
func (n *Notifier) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	n.sent = append(n.sent, message)
	n.mu.Unlock()

	n.Logger.WarnContext(ctx, "user notice", "message", message)
	if n.Broadcaster != nil {
		n.Broadcaster.BroadcastNotice(message)
	}
}

// Sent returns every message shown so far, oldest first.
func (n *Notifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}
