package testbed

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-binding/engine"
	"github.com/spaghettifunk/anima-binding/engine/assets"
	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/systems"
)

// statsInterval is how often the testbed logs the bind pass metrics.
const statsInterval = 5 * time.Second

type TestGame struct {
	*engine.Game
}

type gameState struct {
	sinceStats time.Duration
	lastReport *systems.BindingReport
	changes    int
}

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:               "Anima Binding Testbed",
				ConfigPath:         configPath,
				BindingsPerProgram: 2,
				TickInterval:       250 * time.Millisecond,
			},
			State: &gameState{},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnBind = tg.OnBind
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}
	if !core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, g, g.onAssetChanged) {
		return fmt.Errorf("failed to register for asset changes")
	}
	for _, name := range g.SystemManager.BindingSystem.ProgramNames() {
		core.LogInfo("shader program '%s' ready with %d binding(s)", name, len(g.SystemManager.BindingSystem.Bindings(name)))
	}
	return nil
}

func (g *TestGame) Update(deltaTime time.Duration) error {
	state := g.State.(*gameState)

	state.sinceStats += deltaTime
	if state.sinceStats < statsInterval {
		return nil
	}
	state.sinceStats = 0

	unresolved, total := core.MetricsUnresolved()
	core.LogInfo("bind passes: %d (avg %s), unresolved now: %d, reported overall: %d, asset changes: %d",
		core.MetricsPasses(), core.MetricsPassTime(), unresolved, total, state.changes)
	return nil
}

func (g *TestGame) OnBind(report *systems.BindingReport) error {
	state := g.State.(*gameState)
	state.lastReport = report

	for _, p := range report.Programs {
		bound := 0
		for _, b := range p.Bindings {
			if b.Bound {
				bound++
			}
		}
		if p.StaticErr != nil {
			core.LogWarn("program '%s': static resources incomplete: %s", p.Program, p.StaticErr)
		}
		core.LogInfo("program '%s': %d/%d binding(s) fully bound", p.Program, bound, len(p.Bindings))
	}
	if report.FullyBound() {
		core.LogInfo("every shader variable is bound (flags %s)", report.Flags)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.EventUnregister(core.EVENT_CODE_ASSET_CHANGED, g)
	state := g.State.(*gameState)
	if state.lastReport != nil && !state.lastReport.FullyBound() {
		core.LogWarn("shutting down with %d unresolved variable element(s)", state.lastReport.Unresolved())
	}
	return nil
}

func (g *TestGame) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	state := g.State.(*gameState)
	if ev, ok := data.Data.(assets.AssetEvent); ok {
		state.changes++
		core.LogInfo("asset %s: %s (%s)", ev.Op, ev.Asset.Path, ev.Asset.Type)
	}
	return false
}
