//go:build windows

package control

import "context"

func stopToken(ctx context.Context) (context.Context, func()) {
	return context.WithCancel(ctx)
}
