package vulkan

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync/atomic"

	"github.com/spaghettifunk/anima-binding/engine/containers"
	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

// UnresolvedResourceError reports an array element of a shader variable that
// was left without an object.
type UnresolvedResourceError struct {
	Shader     string
	Variable   string
	ArrayIndex uint32
	ArraySize  uint32
}

func (e *UnresolvedResourceError) Error() string {
	name := e.Variable
	if e.ArraySize > 1 {
		name = fmt.Sprintf("%s[%d]", e.Variable, e.ArrayIndex)
	}
	return fmt.Sprintf("shader '%s': no resource is bound to shader variable '%s'", e.Shader, name)
}

// ShaderVariableVk is a handle to one resource of a layout. It is only valid
// while the manager that created it has not been destroyed.
type ShaderVariableVk struct {
	parentManager *ShaderVariableManagerVk
	resource      *VkResource
}

func (v *ShaderVariableVk) Name() string {
	return v.resource.Name
}

func (v *ShaderVariableVk) Type() metadata.ShaderVariableType {
	return v.resource.VariableType
}

func (v *ShaderVariableVk) ArraySize() uint32 {
	return v.resource.ArraySize
}

func (v *ShaderVariableVk) Resource() *VkResource {
	return v.resource
}

// Index returns the slot of the variable in its manager.
func (v *ShaderVariableVk) Index() int {
	return v.parentManager.GetVariableIndex(v)
}

// Set binds obj to the first array element.
func (v *ShaderVariableVk) Set(obj metadata.DeviceObject) error {
	return v.resource.BindResource(obj, 0, v.parentManager.resourceCache)
}

// SetArray binds objs to consecutive array elements starting at firstElement.
func (v *ShaderVariableVk) SetArray(objs []metadata.DeviceObject, firstElement uint32) error {
	var errs []error
	for i, obj := range objs {
		if err := v.resource.BindResource(obj, firstElement+uint32(i), v.parentManager.resourceCache); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *ShaderVariableVk) IsBound(arrayIndex uint32) bool {
	return v.resource.IsBound(arrayIndex, v.parentManager.resourceCache)
}

// destroyGuard lets the cleanup of a collected manager find out whether
// Destroy was called.
type destroyGuard struct {
	shaderName string
	destroyed  atomic.Bool
}

// ShaderVariableManagerVk owns the variables created for a subset of the
// variable types of a layout. Variables live in a single block provided by
// an allocator, which must be handed back through Destroy.
type ShaderVariableManagerVk struct {
	resourceLayout *ShaderResourceLayoutVk
	resourceCache  *ShaderResourceCacheVk
	variables      *containers.FixedArray[ShaderVariableVk]

	dbgAllocator memory.Allocator
	guard        *destroyGuard
}

func NewShaderVariableManagerVk() *ShaderVariableManagerVk {
	return &ShaderVariableManagerVk{}
}

// Initialize creates a variable for every resource of srcLayout whose type is
// in allowedVarTypes. Variables are ordered by type (static, mutable,
// dynamic) and by declaration order within a type. Initialize must be called
// once, and Destroy must be called before the manager is dropped.
func (m *ShaderVariableManagerVk) Initialize(srcLayout *ShaderResourceLayoutVk, allocator memory.Allocator, allowedVarTypes metadata.ShaderVariableTypeFlags, resourceCache *ShaderResourceCacheVk) error {
	core.Verify(m.variables == nil, "shader variable manager for shader '%s' is already initialized", srcLayout.ShaderName())

	m.resourceLayout = srcLayout
	m.resourceCache = resourceCache

	numVariables := 0
	for vt := metadata.ShaderVariableTypeStatic; vt < metadata.ShaderVariableTypeNumTypes; vt++ {
		if allowedVarTypes.IsAllowed(vt) {
			numVariables += int(srcLayout.GetResourceCount(vt))
		}
	}

	vars, err := containers.NewFixedArray[ShaderVariableVk](allocator, "Raw memory buffer for shader variables", numVariables)
	if err != nil {
		core.LogError("Failed to allocate %d shader variables for shader '%s': %s", numVariables, srcLayout.ShaderName(), err)
		return err
	}
	m.variables = vars

	for vt := metadata.ShaderVariableTypeStatic; vt < metadata.ShaderVariableTypeNumTypes; vt++ {
		if !allowedVarTypes.IsAllowed(vt) {
			continue
		}
		numResources := srcLayout.GetResourceCount(vt)
		for r := uint32(0); r < numResources; r++ {
			if _, err := m.variables.Emplace(ShaderVariableVk{parentManager: m, resource: srcLayout.GetResource(vt, r)}); err != nil {
				return err
			}
		}
	}
	core.Verify(m.variables.Len() == numVariables, "created %d variables, expected %d", m.variables.Len(), numVariables)

	if core.ValidationEnabled() {
		m.dbgAllocator = allocator
		m.guard = &destroyGuard{shaderName: srcLayout.ShaderName()}
		runtime.AddCleanup(m, func(g *destroyGuard) {
			if !g.destroyed.Load() {
				core.LogError("Shader variable manager for shader '%s' was released without calling Destroy()", g.shaderName)
			}
		}, m.guard)
	}
	return nil
}

// Destroy destructs every variable and returns the block to allocator, which
// must be the allocator passed to Initialize. Calling Destroy on a manager
// that holds no block does nothing. When allocator does not own the block the
// manager keeps its variables and Destroy can be called again.
func (m *ShaderVariableManagerVk) Destroy(allocator memory.Allocator) error {
	if m.variables == nil {
		return nil
	}
	if m.dbgAllocator != nil {
		core.Verify(sameAllocator(m.dbgAllocator, allocator), "Inconsistent allocator")
	}

	err := m.variables.Release(allocator, func(v *ShaderVariableVk) {
		v.parentManager = nil
		v.resource = nil
	})
	if err != nil {
		core.LogError("Failed to release shader variables: %s", err)
		return err
	}
	m.variables = nil
	m.dbgAllocator = nil
	if m.guard != nil {
		m.guard.destroyed.Store(true)
	}
	return nil
}

// sameAllocator compares two allocators without panicking on value types
// that cannot be compared. Such allocators are assumed to match.
func sameAllocator(a, b memory.Allocator) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil || !ta.Comparable() {
		return true
	}
	return a == b
}

// IsInitialized reports whether the manager currently holds its block.
func (m *ShaderVariableManagerVk) IsInitialized() bool {
	return m.variables != nil
}

func (m *ShaderVariableManagerVk) GetVariableCount() int {
	if m.variables == nil {
		return 0
	}
	return m.variables.Len()
}

// GetVariable returns the first variable named name, or nil.
func (m *ShaderVariableManagerVk) GetVariable(name string) *ShaderVariableVk {
	for v := 0; v < m.GetVariableCount(); v++ {
		variable := m.variables.At(v)
		if variable.resource.Name == name {
			return variable
		}
	}
	return nil
}

// GetVariableByIndex returns the variable in slot index, or nil.
func (m *ShaderVariableManagerVk) GetVariableByIndex(index int) *ShaderVariableVk {
	if index < 0 || index >= m.GetVariableCount() {
		core.LogError("Index %d is out of range: there are %d variables", index, m.GetVariableCount())
		return nil
	}
	return m.variables.At(index)
}

// GetVariableIndex returns the slot of variable, or -1 if it does not belong
// to this manager.
func (m *ShaderVariableManagerVk) GetVariableIndex(variable *ShaderVariableVk) int {
	for v := 0; v < m.GetVariableCount(); v++ {
		if m.variables.At(v) == variable {
			return v
		}
	}
	core.LogError("Failed to get variable index: the variable does not belong to this shader variable manager")
	return -1
}

// BindResources resolves every variable against mapping. The pass never stops
// early: every problem is logged and the joined errors are returned once all
// variables have been processed.
func (m *ShaderVariableManagerVk) BindResources(mapping metadata.ResourceMapping, flags metadata.BindShaderResourcesFlags) error {
	core.Verify(m.resourceCache != nil, "resource cache is not initialized")

	if mapping == nil {
		core.LogError("Failed to bind resources: resource mapping is null")
		return core.ErrNilResourceMapping
	}

	var errs []error
	for v := 0; v < m.GetVariableCount(); v++ {
		res := m.variables.At(v).resource

		// Immutable samplers are part of the pipeline.
		if res.IsImmutableSampler() {
			continue
		}

		for arrInd := uint32(0); arrInd < res.ArraySize; arrInd++ {
			if core.HasFlag(flags, metadata.BindShaderResourcesResetBindings) {
				if err := res.BindResource(nil, arrInd, m.resourceCache); err != nil {
					errs = append(errs, err)
				}
			}

			if core.HasFlag(flags, metadata.BindShaderResourcesUpdateUnresolved) && res.IsBound(arrInd, m.resourceCache) {
				continue
			}

			if obj := mapping.GetResource(res.Name, arrInd); obj != nil {
				if err := res.BindResource(obj, arrInd, m.resourceCache); err != nil {
					errs = append(errs, err)
				}
			} else if core.HasFlag(flags, metadata.BindShaderResourcesAllResolved) && !res.IsBound(arrInd, m.resourceCache) {
				core.LogError("Cannot bind resource to shader variable '%s': resource view not found in the resource mapping", res.PrintName(arrInd))
				errs = append(errs, &UnresolvedResourceError{
					Shader:     m.resourceLayout.ShaderName(),
					Variable:   res.Name,
					ArrayIndex: arrInd,
					ArraySize:  res.ArraySize,
				})
			}
		}
	}
	return errors.Join(errs...)
}
