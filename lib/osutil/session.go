package osutil

import (
	"context"
	"os/signal"
	"syscall"
)

// Returns a context that will live until Ctrl+C is pressed. The browser
// session and the temp download directory hang off this context, so an
// interrupted run still cleans up after itself.
func SignalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}
