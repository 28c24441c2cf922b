package core

import (
	"fmt"
	"sync/atomic"
)

var validation atomic.Bool

func init() {
	validation.Store(DebugBuild)
}

// EnableValidation turns the contract checks on or off and returns the
// previous state.
func EnableValidation(enabled bool) bool {
	return validation.Swap(enabled)
}

// ValidationEnabled reports whether contract checks are active.
func ValidationEnabled() bool {
	return validation.Load()
}

// Verify reports a failed contract check. It does nothing when validation is
// disabled, so the condition must not carry side effects the caller relies on.
// The return value is cond, or true when validation is off.
func Verify(cond bool, msg string, args ...interface{}) bool {
	if !validation.Load() || cond {
		return true
	}
	LogError("Debug expression failed: %s", fmt.Sprintf(msg, args...))
	return false
}
