package engine

import (
	"time"

	"github.com/spaghettifunk/anima-binding/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnBind          OnBind
	FnShutdown        Shutdown
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime time.Duration) error
type OnBind func(report *systems.BindingReport) error
type Shutdown func() error
