package systems

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-binding/engine/renderer/vulkan"
)

var (
	ErrProgramExists   = errors.New("shader program already exists")
	ErrProgramNotFound = errors.New("shader program not found")
	ErrTooManyPrograms = errors.New("maximum number of shader programs reached")
)

/** @brief Configuration for the binding system. */
type BindingSystemConfig struct {
	/** @brief The maximum number of shader programs held in the system. */
	MaxProgramCount uint32
	/** @brief Flags used by every bind pass. */
	Flags metadata.BindShaderResourcesFlags
}

type programEntry struct {
	program  *vulkan.ShaderProgramVk
	attribs  []metadata.ShaderResourceAttribs
	bindings []*vulkan.ShaderResourceBindingVk
}

// BindingSystem owns the shader programs of the engine and their resource
// bindings. Every variable manager is created from, and returned to, the
// system allocator.
type BindingSystem struct {
	// This system's configuration.
	Config *BindingSystemConfig

	allocator *memory.HeapAllocator
	jobs      *JobSystem

	mu       sync.Mutex
	programs map[string]*programEntry
}

func NewBindingSystem(config *BindingSystemConfig, js *JobSystem) (*BindingSystem, error) {
	if config.MaxProgramCount == 0 {
		err := fmt.Errorf("NewBindingSystem - config.MaxProgramCount must be greater than 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &BindingSystem{
		Config:    config,
		allocator: memory.NewHeapAllocator(),
		jobs:      js,
		programs:  make(map[string]*programEntry),
	}, nil
}

// Allocator returns the allocator backing every variable manager.
func (bs *BindingSystem) Allocator() *memory.HeapAllocator {
	return bs.allocator
}

/**
 * @brief Creates a new shader program from the reflected resources of a shader.
 *
 * @param name Unique name of the program.
 * @param attribs The resources of the shader, in declaration order.
 */
func (bs *BindingSystem) CreateProgram(name string, attribs []metadata.ShaderResourceAttribs) (*vulkan.ShaderProgramVk, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if _, ok := bs.programs[name]; ok {
		return nil, fmt.Errorf("%w: '%s'", ErrProgramExists, name)
	}
	if uint32(len(bs.programs)) >= bs.Config.MaxProgramCount {
		err := fmt.Errorf("%w: %d", ErrTooManyPrograms, bs.Config.MaxProgramCount)
		core.LogError("Unable to create shader program '%s': %s", name, err)
		return nil, err
	}
	p, err := vulkan.NewShaderProgramVk(name, attribs, bs.allocator)
	if err != nil {
		return nil, err
	}
	bs.programs[name] = &programEntry{
		program: p,
		attribs: slices.Clone(attribs),
	}
	return p, nil
}

// ReloadProgram replaces the program called name with one built from
// attribs. The program keeps as many resource bindings as it had; they are
// created anew and receive their resources on the next bind pass.
func (bs *BindingSystem) ReloadProgram(name string, attribs []metadata.ShaderResourceAttribs) (*vulkan.ShaderProgramVk, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	entry, ok := bs.programs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrProgramNotFound, name)
	}
	fresh, err := bs.buildEntry(name, attribs, len(entry.bindings))
	if err != nil {
		return nil, err
	}
	if err := destroyEntry(entry); err != nil {
		core.LogWarn("Shader program '%s' was not released cleanly: %s", name, err)
	}
	bs.programs[name] = fresh
	core.LogInfo("Shader program '%s' reloaded with %d resource binding(s).", name, len(fresh.bindings))
	return fresh.program, nil
}

// Rebuild recreates every program and its bindings, dropping all bound
// resources.
func (bs *BindingSystem) Rebuild() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var errs []error
	for _, name := range bs.sortedNames() {
		entry := bs.programs[name]
		fresh, err := bs.buildEntry(name, entry.attribs, len(entry.bindings))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := destroyEntry(entry); err != nil {
			errs = append(errs, err)
		}
		bs.programs[name] = fresh
	}
	return errors.Join(errs...)
}

func (bs *BindingSystem) buildEntry(name string, attribs []metadata.ShaderResourceAttribs, numBindings int) (*programEntry, error) {
	p, err := vulkan.NewShaderProgramVk(name, attribs, bs.allocator)
	if err != nil {
		return nil, err
	}
	entry := &programEntry{program: p, attribs: slices.Clone(attribs)}
	for i := 0; i < numBindings; i++ {
		srb, err := p.CreateResourceBinding(false)
		if err != nil {
			_ = destroyEntry(entry)
			return nil, err
		}
		entry.bindings = append(entry.bindings, srb)
	}
	return entry, nil
}

func (bs *BindingSystem) GetProgram(name string) (*vulkan.ShaderProgramVk, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	entry, ok := bs.programs[name]
	if !ok {
		return nil, false
	}
	return entry.program, true
}

// ProgramNames returns the names of every program in sorted order.
func (bs *BindingSystem) ProgramNames() []string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.sortedNames()
}

func (bs *BindingSystem) sortedNames() []string {
	names := make([]string, 0, len(bs.programs))
	for name := range bs.programs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateBinding adds a resource binding to the named program. Static
// resources are copied into it on the next bind pass.
func (bs *BindingSystem) CreateBinding(programName string) (*vulkan.ShaderResourceBindingVk, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	entry, ok := bs.programs[programName]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrProgramNotFound, programName)
	}
	srb, err := entry.program.CreateResourceBinding(false)
	if err != nil {
		return nil, err
	}
	entry.bindings = append(entry.bindings, srb)
	return srb, nil
}

// Bindings returns the resource bindings of the named program.
func (bs *BindingSystem) Bindings(programName string) []*vulkan.ShaderResourceBindingVk {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	entry, ok := bs.programs[programName]
	if !ok {
		return nil
	}
	return slices.Clone(entry.bindings)
}

// DestroyProgram destroys the named program and all of its bindings.
func (bs *BindingSystem) DestroyProgram(name string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	entry, ok := bs.programs[name]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrProgramNotFound, name)
	}
	delete(bs.programs, name)
	return destroyEntry(entry)
}

// destroyEntry destroys the bindings before the program they were created
// from.
func destroyEntry(entry *programEntry) error {
	var errs []error
	for _, srb := range entry.bindings {
		if err := srb.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	entry.bindings = nil
	if err := entry.program.Destroy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

/** @brief Outcome of binding one resource binding. */
type BindingResult struct {
	Index int
	/** @brief Every variable element has an object bound. */
	Bound bool
	Err   error
}

/** @brief Outcome of a bind pass over one program. */
type ProgramReport struct {
	Program   string
	StaticErr error
	Bindings  []BindingResult
}

/** @brief Outcome of a bind pass, programs sorted by name. */
type BindingReport struct {
	Flags    metadata.BindShaderResourcesFlags
	Programs []ProgramReport
}

// Err joins every error of the pass.
func (r *BindingReport) Err() error {
	var errs []error
	for _, p := range r.Programs {
		if p.StaticErr != nil {
			errs = append(errs, p.StaticErr)
		}
		for _, b := range p.Bindings {
			if b.Err != nil {
				errs = append(errs, b.Err)
			}
		}
	}
	return errors.Join(errs...)
}

// Unresolved counts the variable elements reported as unresolved.
func (r *BindingReport) Unresolved() int {
	return countUnresolved(r.Err())
}

// FullyBound reports whether every binding of every program is bound.
func (r *BindingReport) FullyBound() bool {
	for _, p := range r.Programs {
		for _, b := range p.Bindings {
			if !b.Bound {
				return false
			}
		}
	}
	return true
}

func countUnresolved(err error) int {
	if err == nil {
		return 0
	}
	var u *vulkan.UnresolvedResourceError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += countUnresolved(e)
		}
		return n
	}
	if errors.As(err, &u) {
		return 1
	}
	return 0
}

// BindAll resolves every program and resource binding against mapping using
// the configured flags. Static variables are bound first, then the resource
// bindings are bound in parallel on the job system.
func (bs *BindingSystem) BindAll(mapping metadata.ResourceMapping) (*BindingReport, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	flags := bs.Config.Flags
	report := &BindingReport{Flags: flags}
	for _, name := range bs.sortedNames() {
		entry := bs.programs[name]
		pr := ProgramReport{
			Program:   name,
			StaticErr: entry.program.BindStaticResources(mapping, flags),
			Bindings:  make([]BindingResult, len(entry.bindings)),
		}

		tasks := make([]JobTask, len(entry.bindings))
		for i, srb := range entry.bindings {
			i, srb := i, srb
			tasks[i] = JobTask{
				Name: fmt.Sprintf("bind %s[%d]", name, i),
				Run: func() error {
					var errs []error
					if !srb.StaticResourcesInitialized() {
						if err := srb.InitializeStaticResources(); err != nil {
							errs = append(errs, err)
						}
					}
					if err := srb.BindResources(mapping, flags); err != nil {
						errs = append(errs, err)
					}
					pr.Bindings[i] = BindingResult{Index: i, Bound: srb.IsBound()}
					return errors.Join(errs...)
				},
			}
		}
		results, err := bs.jobs.RunAll(tasks)
		if err != nil {
			return nil, err
		}
		for i, err := range results {
			pr.Bindings[i].Err = err
		}
		report.Programs = append(report.Programs, pr)
	}
	return report, nil
}

/**
 * @brief Shuts down the binding system, destroying every program.
 */
func (bs *BindingSystem) Shutdown() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var errs []error
	for _, name := range bs.sortedNames() {
		if err := destroyEntry(bs.programs[name]); err != nil {
			errs = append(errs, err)
		}
		delete(bs.programs, name)
	}
	stats := bs.allocator.Stats()
	core.Verify(stats.LiveBlocks == 0, "%d shader variable block(s) still allocated after shutdown", stats.LiveBlocks)
	return errors.Join(errs...)
}
