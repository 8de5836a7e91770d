// Package recovery contains goroutine panic containment. Background workers
// must never take the whole process down.
package recovery

import (
	"runtime/debug"

	"github.com/conductor-sh/conductor/internal/logger"
)

// SafeGo runs fn in a goroutine with automatic panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Logger.Error().
					Str("goroutine", name).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered in goroutine")
			}
		}()
		fn()
	}()
}

// SafeGoWithCleanup runs fn in a goroutine with panic recovery, invoking
// cleanup on the way out regardless of how fn terminated.
func SafeGoWithCleanup(name string, fn func(), cleanup func()) {
	go func() {
		defer func() {
			if cleanup != nil {
				cleanup()
			}
			if r := recover(); r != nil {
				logger.Logger.Error().
					Str("goroutine", name).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered in goroutine")
			}
		}()
		fn()
	}()
}
