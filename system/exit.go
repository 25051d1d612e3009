package system

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext returns a context that is cancelled when the process receives
// SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
