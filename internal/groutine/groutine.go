// Package groutine starts named goroutines. The name is attached as a pprof
// label so long-lived daemon goroutines (scan loop, connection writers, GATT
// connects) are identifiable in profiles.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts a goroutine with a name, optional parent context.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	go pprof.Do(parentCtx, pprof.Labels("goroutine_name", name), fn)
}
