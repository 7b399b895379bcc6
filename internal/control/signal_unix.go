//go:build !windows

package control

import (
	"context"
	"os/signal"
	"syscall"
)

// stopToken is cancelled by SIGUSR1, which ends a recording normally.
func stopToken(ctx context.Context) (context.Context, func()) {
	return signal.NotifyContext(ctx, syscall.SIGUSR1)
}
