package engine

import (
	"time"

	"github.com/spaghettifunk/anima-binding/engine/core"
)

type ApplicationConfig struct {
	// The application name used in log messages.
	Name string
	// Path of the TOML configuration, used when Config is nil.
	ConfigPath string
	// Engine configuration. Defaults are used when both Config and
	// ConfigPath are empty.
	Config *core.EngineConfig
	// Number of resource bindings created for every shader program.
	BindingsPerProgram int
	// Interval between two checks for asset changes.
	TickInterval time.Duration
}

const (
	defaultBindingsPerProgram = 1
	defaultTickInterval       = 100 * time.Millisecond
	pendingAssetEventCount    = 256
)
