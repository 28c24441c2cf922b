package systems

import (
	"runtime"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

type SystemManager struct {
	jobSystem     *JobSystem
	BindingSystem *BindingSystem
}

func NewSystemManager(config *core.EngineConfig) (*SystemManager, error) {
	flags, err := metadata.ParseBindShaderResourcesFlags(config.Binding.Flags)
	if err != nil {
		core.LogError("Invalid binding flags %v: %s", config.Binding.Flags, err)
		return nil, err
	}

	js, err := NewJobSystem(runtime.NumCPU(), 0)
	if err != nil {
		return nil, err
	}
	bs, err := NewBindingSystem(&BindingSystemConfig{
		MaxProgramCount: config.Binding.MaxProgramCount,
		Flags:           flags,
	}, js)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	core.LogDebug("System manager created: %d job workers, bind flags %s.", js.NumWorkers(), flags)
	return &SystemManager{
		jobSystem:     js,
		BindingSystem: bs,
	}, nil
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.BindingSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
