package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-binding/engine/assets"
	"github.com/spaghettifunk/anima-binding/engine/containers"
	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/resources"
	"github.com/spaghettifunk/anima-binding/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageStopped
)

var ErrWrongStage = errors.New("operation not allowed in the current engine stage")

type Engine struct {
	mu           sync.Mutex
	currentStage Stage

	gameInstance  *Game
	config        *core.EngineConfig
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock
	tickInterval  time.Duration
	numBindings   int

	// Asset changes waiting for the next tick.
	pending *containers.RingQueue[assets.AssetEvent]
	// Program name of every loaded layout, by asset path.
	layouts map[string]string
	// Loaded resource mappings, by asset path.
	mappings map[string]*resources.Resource

	// Recreates every program and binding, see BindingSystem.Rebuild.
	rebuildPrograms func() error

	quit     chan struct{}
	quitOnce sync.Once
}

func New(g *Game) (*Engine, error) {
	appConfig := g.ApplicationConfig
	if appConfig == nil {
		appConfig = &ApplicationConfig{}
	}
	cfg := appConfig.Config
	if cfg == nil {
		cfg = core.DefaultConfig()
		if appConfig.ConfigPath != "" {
			var err error
			if cfg, err = core.LoadConfig(appConfig.ConfigPath); err != nil {
				core.LogError("%s", err.Error())
				return nil, err
			}
		}
	}
	if err := cfg.Apply(); err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager(cfg.Assets)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(cfg)
	if err != nil {
		core.LogError("%s", err.Error())
		_ = am.Close()
		return nil, err
	}
	g.SystemManager = sm

	e := &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		config:        cfg,
		assetManager:  am,
		systemManager: sm,
		clock:         core.NewClock(),
		tickInterval:  appConfig.TickInterval,
		numBindings:   appConfig.BindingsPerProgram,
		pending:       containers.NewRingQueue[assets.AssetEvent](pendingAssetEventCount),
		layouts:       make(map[string]string),
		mappings:      make(map[string]*resources.Resource),
		quit:          make(chan struct{}),
	}
	e.rebuildPrograms = sm.BindingSystem.Rebuild
	if e.tickInterval <= 0 {
		e.tickInterval = defaultTickInterval
	}
	if e.numBindings <= 0 {
		e.numBindings = defaultBindingsPerProgram
	}
	return e, nil
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentStage = s
}

func (e *Engine) Config() *core.EngineConfig {
	return e.config
}

func (e *Engine) AssetManager() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Initialize() error {
	if e.Stage() != EngineStageUninitialized {
		return ErrWrongStage
	}
	e.setStage(EngineStageBooting)
	if e.gameInstance.FnBoot != nil {
		if err := e.gameInstance.FnBoot(); err != nil {
			return err
		}
	}
	e.setStage(EngineStageBootComplete)

	e.setStage(EngineStageInitializing)
	// initialize events
	if !core.EventInitialize() {
		core.LogDebug("Event system already initialized.")
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}
	for _, a := range e.assetManager.Assets(resources.ResourceTypeShaderLayout) {
		if err := e.applyLayout(a.Path); err != nil {
			return err
		}
	}
	for _, a := range e.assetManager.Assets(resources.ResourceTypeResourceMapping) {
		if err := e.applyMapping(a.Path); err != nil {
			return err
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	if err := e.bind(); err != nil {
		return err
	}

	e.setStage(EngineStageInitialized)
	core.LogInfo("%s initialized: %d program(s), %d resource mapping(s).", e.config.Name,
		len(e.layouts), len(e.mappings))
	return nil
}

// Run processes asset changes until Shutdown is called or an application
// quit event is fired, then releases everything.
func (e *Engine) Run() error {
	if e.Stage() != EngineStageInitialized {
		return ErrWrongStage
	}
	e.setStage(EngineStageRunning)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	e.clock.Start()
	lastTime := e.clock.Elapsed()
	events := e.assetManager.Events()

	var runErr error
loop:
	for {
		select {
		case <-e.quit:
			break loop

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := e.pending.Enqueue(ev); err != nil {
				core.LogWarn("Dropping change of '%s': %s", ev.Asset.Path, err)
			}

		case <-ticker.C:
			if e.quitRequested() {
				break loop
			}
			e.clock.Update()
			currentTime := e.clock.Elapsed()
			delta := currentTime - lastTime
			lastTime = currentTime

			if e.processPending() {
				if err := e.bind(); err != nil {
					runErr = err
					break loop
				}
			}
			if e.gameInstance.FnUpdate != nil {
				if err := e.gameInstance.FnUpdate(delta); err != nil {
					core.LogError("Game update failed, shutting down: %s", err)
					runErr = err
					break loop
				}
			}
		}
	}

	return errors.Join(runErr, e.shutdown())
}

// Shutdown stops a running engine. Run performs the release and returns. An
// engine that is not running is released directly.
func (e *Engine) Shutdown() error {
	e.requestQuit()
	if e.Stage() == EngineStageRunning {
		return nil
	}
	return e.shutdown()
}

func (e *Engine) requestQuit() {
	e.quitOnce.Do(func() { close(e.quit) })
}

func (e *Engine) quitRequested() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

func (e *Engine) shutdown() error {
	e.mu.Lock()
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageStopped {
		e.mu.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.mu.Unlock()

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	// Bindings reference the mapped objects, so they go first.
	if err := e.systemManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	for _, path := range e.mappingPaths() {
		if err := e.assetManager.UnloadAsset(e.mappings[path]); err != nil {
			errs = append(errs, err)
		}
		delete(e.mappings, path)
	}
	if err := e.assetManager.Close(); err != nil {
		errs = append(errs, err)
	}
	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	if err := core.EventShutdown(); err != nil {
		errs = append(errs, err)
	}

	e.setStage(EngineStageStopped)
	core.LogInfo("%s shut down after %d bind pass(es).", e.config.Name, core.MetricsPasses())
	return errors.Join(errs...)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.requestQuit()
		return true
	}
	return false
}

// processPending applies the queued asset changes and reports whether a bind
// pass is needed.
func (e *Engine) processPending() bool {
	changed := false
	for !e.pending.IsEmpty() {
		ev, err := e.pending.Dequeue()
		if err != nil {
			break
		}
		core.EventFire(core.EVENT_CODE_ASSET_CHANGED, e, core.EventContext{Name: ev.Asset.Path, Data: ev})

		var applyErr error
		switch {
		case ev.Op == assets.AssetRemoved && ev.Asset.Type == resources.ResourceTypeShaderLayout:
			applyErr = e.removeLayout(ev.Asset.Path)
		case ev.Op == assets.AssetRemoved && ev.Asset.Type == resources.ResourceTypeResourceMapping:
			applyErr = e.removeMapping(ev.Asset.Path)
		case ev.Asset.Type == resources.ResourceTypeShaderLayout:
			applyErr = e.applyLayout(ev.Asset.Path)
		case ev.Asset.Type == resources.ResourceTypeResourceMapping:
			applyErr = e.applyMapping(ev.Asset.Path)
		}
		if applyErr != nil {
			// Keep the previous state and wait for the next change.
			core.LogError("Failed to apply %s asset '%s': %s", ev.Op, ev.Asset.Path, applyErr)
			continue
		}
		changed = true
	}
	return changed
}

// applyLayout creates or reloads the shader program described by a layout
// asset.
func (e *Engine) applyLayout(path string) error {
	res, err := e.assetManager.LoadAsset(path)
	if err != nil {
		return err
	}
	defer func() { _ = e.assetManager.UnloadAsset(res) }()

	data, ok := res.Data.(*resources.ShaderLayoutResourceData)
	if !ok {
		return fmt.Errorf("asset '%s' is not a shader layout", path)
	}
	name := data.ShaderName
	if name == "" {
		name = res.Name
	}

	bs := e.systemManager.BindingSystem
	if prev, ok := e.layouts[path]; ok && prev != name {
		if err := bs.DestroyProgram(prev); err != nil {
			core.LogWarn("Failed to destroy shader program '%s': %s", prev, err)
		}
		delete(e.layouts, path)
	}
	if _, exists := bs.GetProgram(name); exists {
		if _, err := bs.ReloadProgram(name, data.Resources); err != nil {
			return err
		}
	} else {
		if _, err := bs.CreateProgram(name, data.Resources); err != nil {
			return err
		}
		for i := 0; i < e.numBindings; i++ {
			if _, err := bs.CreateBinding(name); err != nil {
				return err
			}
		}
	}
	e.layouts[path] = name
	return nil
}

func (e *Engine) removeLayout(path string) error {
	name, ok := e.layouts[path]
	if !ok {
		return nil
	}
	delete(e.layouts, path)
	return e.systemManager.BindingSystem.DestroyProgram(name)
}

// applyMapping loads a resource mapping asset, replacing the objects loaded
// from the same file before.
func (e *Engine) applyMapping(path string) error {
	res, err := e.assetManager.LoadAsset(path)
	if err != nil {
		return err
	}
	return e.replaceMapping(path, res)
}

func (e *Engine) removeMapping(path string) error {
	if _, ok := e.mappings[path]; !ok {
		return nil
	}
	return e.replaceMapping(path, nil)
}

// replaceMapping swaps the mapping loaded from path. Bindings may still
// reference the old objects, so every program is rebuilt before they are
// released.
func (e *Engine) replaceMapping(path string, res *resources.Resource) error {
	old, hadOld := e.mappings[path]
	if res != nil {
		e.mappings[path] = res
	} else {
		delete(e.mappings, path)
	}
	if !hadOld {
		return nil
	}
	// The old objects are released even when the rebuild fails, the next
	// bind pass only sees the new mapping.
	rebuildErr := e.rebuildPrograms()
	if rebuildErr != nil {
		core.LogError("Failed to rebuild shader programs after '%s' changed: %s", path, rebuildErr)
	}
	return errors.Join(rebuildErr, e.assetManager.UnloadAsset(old))
}

func (e *Engine) mappingPaths() []string {
	paths := make([]string, 0, len(e.mappings))
	for p := range e.mappings {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// ResourceMapping returns the loaded mappings chained in asset path order.
func (e *Engine) ResourceMapping() resources.MappingChain {
	var chain resources.MappingChain
	for _, p := range e.mappingPaths() {
		if data, ok := e.mappings[p].Data.(*resources.ResourceMappingResourceData); ok {
			chain = append(chain, data.Mapping)
		}
	}
	return chain
}

func (e *Engine) bind() error {
	start := time.Now()
	report, err := e.systemManager.BindingSystem.BindAll(e.ResourceMapping())
	if err != nil {
		return err
	}
	unresolved := report.Unresolved()
	core.MetricsUpdate(time.Since(start), unresolved)
	core.EventFire(core.EVENT_CODE_RESOURCES_BOUND, e, core.EventContext{Count: uint32(unresolved), Data: report})

	if unresolved > 0 {
		core.LogWarn("Bind pass left %d variable element(s) unresolved.", unresolved)
	}
	if e.gameInstance.FnOnBind != nil {
		return e.gameInstance.FnOnBind(report)
	}
	return nil
}
