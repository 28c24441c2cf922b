//go:build debug

package core

// DebugBuild reports whether the binary was built with the debug tag. It is
// the default for the validation layer.
const DebugBuild = true
