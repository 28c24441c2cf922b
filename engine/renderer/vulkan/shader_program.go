package vulkan

import (
	"fmt"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

/**
 * @brief The binding side of a shader: its resource layout plus the static
 * resources shared by every resource binding created from it.
 */
type ShaderProgramVk struct {
	name        string
	allocator   memory.Allocator
	layout      *ShaderResourceLayoutVk
	staticCache *ShaderResourceCacheVk
	staticVars  *ShaderVariableManagerVk
}

func NewShaderProgramVk(name string, attribs []metadata.ShaderResourceAttribs, allocator memory.Allocator) (*ShaderProgramVk, error) {
	layout, err := NewShaderResourceLayoutVk(name, attribs)
	if err != nil {
		core.LogError("Failed to create resource layout: %s", err)
		return nil, err
	}

	p := &ShaderProgramVk{
		name:        name,
		allocator:   allocator,
		layout:      layout,
		staticCache: NewShaderResourceCacheVk(CacheContentTypeStaticResources),
		staticVars:  NewShaderVariableManagerVk(),
	}
	layout.InitializeResourceCache(p.staticCache)
	if err := p.staticVars.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagStatic, p.staticCache); err != nil {
		return nil, fmt.Errorf("shader '%s': %w", name, err)
	}

	core.LogDebug("Shader program '%s' created: %d static, %d mutable, %d dynamic resources.", name,
		layout.GetResourceCount(metadata.ShaderVariableTypeStatic),
		layout.GetResourceCount(metadata.ShaderVariableTypeMutable),
		layout.GetResourceCount(metadata.ShaderVariableTypeDynamic))
	return p, nil
}

func (p *ShaderProgramVk) Name() string {
	return p.name
}

func (p *ShaderProgramVk) Layout() *ShaderResourceLayoutVk {
	return p.layout
}

func (p *ShaderProgramVk) StaticCache() *ShaderResourceCacheVk {
	return p.staticCache
}

// GetStaticVariable returns the static variable named name, or nil.
func (p *ShaderProgramVk) GetStaticVariable(name string) *ShaderVariableVk {
	return p.staticVars.GetVariable(name)
}

func (p *ShaderProgramVk) GetStaticVariableCount() int {
	return p.staticVars.GetVariableCount()
}

func (p *ShaderProgramVk) GetStaticVariableByIndex(index int) *ShaderVariableVk {
	return p.staticVars.GetVariableByIndex(index)
}

// BindStaticResources resolves the static variables against mapping.
func (p *ShaderProgramVk) BindStaticResources(mapping metadata.ResourceMapping, flags metadata.BindShaderResourcesFlags) error {
	return p.staticVars.BindResources(mapping, flags)
}

// CreateResourceBinding creates a resource binding over the mutable and
// dynamic variables. When initStaticResources is set the static resources
// bound to the program are copied into it.
func (p *ShaderProgramVk) CreateResourceBinding(initStaticResources bool) (*ShaderResourceBindingVk, error) {
	srb, err := newShaderResourceBindingVk(p, p.allocator)
	if err != nil {
		return nil, err
	}
	if initStaticResources {
		if err := srb.InitializeStaticResources(); err != nil {
			return srb, err
		}
	}
	return srb, nil
}

// Destroy releases the static variables. Resource bindings created from the
// program must be destroyed first.
func (p *ShaderProgramVk) Destroy() error {
	return p.staticVars.Destroy(p.allocator)
}

/**
 * @brief Holds the mutable and dynamic resources of a shader program for
 * one draw or dispatch setup.
 */
type ShaderResourceBindingVk struct {
	program                    *ShaderProgramVk
	allocator                  memory.Allocator
	cache                      *ShaderResourceCacheVk
	variables                  *ShaderVariableManagerVk
	staticResourcesInitialized bool
}

func newShaderResourceBindingVk(program *ShaderProgramVk, allocator memory.Allocator) (*ShaderResourceBindingVk, error) {
	srb := &ShaderResourceBindingVk{
		program:   program,
		allocator: allocator,
		cache:     NewShaderResourceCacheVk(CacheContentTypeSRBResources),
		variables: NewShaderVariableManagerVk(),
	}
	program.layout.InitializeResourceCache(srb.cache)
	allowed := metadata.AllowedTypes(metadata.ShaderVariableTypeMutable, metadata.ShaderVariableTypeDynamic)
	if err := srb.variables.Initialize(program.layout, allocator, allowed, srb.cache); err != nil {
		return nil, fmt.Errorf("shader '%s': %w", program.name, err)
	}
	return srb, nil
}

func (s *ShaderResourceBindingVk) Program() *ShaderProgramVk {
	return s.program
}

func (s *ShaderResourceBindingVk) Cache() *ShaderResourceCacheVk {
	return s.cache
}

// GetVariable returns the mutable or dynamic variable named name, or nil.
func (s *ShaderResourceBindingVk) GetVariable(name string) *ShaderVariableVk {
	v := s.variables.GetVariable(name)
	if v == nil && s.program.GetStaticVariable(name) != nil {
		core.LogWarn("Static shader variable '%s' of shader '%s' must be set through the shader program", name, s.program.name)
	}
	return v
}

func (s *ShaderResourceBindingVk) GetVariableCount() int {
	return s.variables.GetVariableCount()
}

func (s *ShaderResourceBindingVk) GetVariableByIndex(index int) *ShaderVariableVk {
	return s.variables.GetVariableByIndex(index)
}

// BindResources resolves the mutable and dynamic variables against mapping.
func (s *ShaderResourceBindingVk) BindResources(mapping metadata.ResourceMapping, flags metadata.BindShaderResourcesFlags) error {
	return s.variables.BindResources(mapping, flags)
}

// InitializeStaticResources copies the static resources of the program.
func (s *ShaderResourceBindingVk) InitializeStaticResources() error {
	if s.staticResourcesInitialized {
		core.LogWarn("Static resources have already been initialized in this shader resource binding object. The operation will be ignored.")
		return nil
	}
	err := s.program.layout.InitializeStaticResources(s.program.staticCache, s.cache)
	s.staticResourcesInitialized = true
	return err
}

func (s *ShaderResourceBindingVk) StaticResourcesInitialized() bool {
	return s.staticResourcesInitialized
}

// IsBound reports whether every element of every variable (static ones
// included) has an object bound. Immutable samplers are ignored.
func (s *ShaderResourceBindingVk) IsBound() bool {
	l := s.program.layout
	for vt := metadata.ShaderVariableTypeStatic; vt < metadata.ShaderVariableTypeNumTypes; vt++ {
		for r := uint32(0); r < l.GetResourceCount(vt); r++ {
			res := l.GetResource(vt, r)
			if res.IsImmutableSampler() {
				continue
			}
			for i := uint32(0); i < res.ArraySize; i++ {
				if !res.IsBound(i, s.cache) {
					return false
				}
			}
		}
	}
	return true
}

func (s *ShaderResourceBindingVk) Destroy() error {
	return s.variables.Destroy(s.allocator)
}
