package vulkan

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-binding/engine/resources"
)

func TestInitializeVariableCountAndOrder(t *testing.T) {
	captureReports(t)

	tests := []struct {
		name    string
		allowed metadata.ShaderVariableTypeFlags
		want    []string
	}{
		{"all", metadata.ShaderVariableTypeFlagsAll, canonicalNames},
		{"static", metadata.ShaderVariableTypeFlagStatic, []string{"g_Constants", "g_Sampler"}},
		{"mutable", metadata.ShaderVariableTypeFlagMutable, []string{"g_Texture", "g_Data"}},
		{"dynamic", metadata.ShaderVariableTypeFlagDynamic, []string{"g_Textures", "g_DynSamplers", "g_Lights"}},
		{"mutable and dynamic", metadata.AllowedTypes(metadata.ShaderVariableTypeDynamic, metadata.ShaderVariableTypeMutable), []string{"g_Texture", "g_Data", "g_Textures", "g_DynSamplers", "g_Lights"}},
		{"static and dynamic", metadata.AllowedTypes(metadata.ShaderVariableTypeStatic, metadata.ShaderVariableTypeDynamic), []string{"g_Constants", "g_Sampler", "g_Textures", "g_DynSamplers", "g_Lights"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.allowed)
			assert.True(t, f.manager.IsInitialized())
			assert.Equal(t, len(tt.want), f.manager.GetVariableCount())
			assert.Equal(t, tt.want, f.names())

			stats := f.allocator.Stats()
			assert.Equal(t, uint64(1), stats.Allocations)
			assert.Equal(t, 1, stats.LiveBlocks)
			assert.Equal(t, uint64(len(tt.want))*uint64(unsafe.Sizeof(ShaderVariableVk{})), stats.LiveBytes)

			for i := 0; i < f.manager.GetVariableCount(); i++ {
				v := f.manager.GetVariableByIndex(i)
				require.NotNil(t, v)
				assert.True(t, tt.allowed.IsAllowed(v.Type()))
				assert.Equal(t, i, v.Index())
			}
		})
	}
}

func TestInitializeIsDeterministic(t *testing.T) {
	captureReports(t)

	layout := newTestLayout(t)
	allocator := memory.NewHeapAllocator()
	build := func() *ShaderVariableManagerVk {
		cache := NewShaderResourceCacheVk(CacheContentTypeSRBResources)
		layout.InitializeResourceCache(cache)
		m := NewShaderVariableManagerVk()
		require.NoError(t, m.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagsAll, cache))
		t.Cleanup(func() { _ = m.Destroy(allocator) })
		return m
	}

	a, b := build(), build()
	require.Equal(t, a.GetVariableCount(), b.GetVariableCount())
	for i := 0; i < a.GetVariableCount(); i++ {
		assert.Same(t, a.GetVariableByIndex(i).Resource(), b.GetVariableByIndex(i).Resource())
	}
}

func TestInitializeEmptyAllowedSet(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsNone)

	assert.Equal(t, 0, f.manager.GetVariableCount())
	for _, name := range canonicalNames {
		assert.Nil(t, f.manager.GetVariable(name))
	}
	assert.Equal(t, uint64(1), f.allocator.Stats().Allocations)
	assert.Equal(t, uint64(0), f.allocator.Stats().LiveBytes)

	mapping := &countingMapping{ResourceMapping: testObjects(t, "")}
	assert.NoError(t, f.manager.BindResources(mapping, metadata.BindShaderResourcesAllResolved|metadata.BindShaderResourcesResetBindings))
	assert.Equal(t, 0, mapping.lookups)
	assert.Equal(t, 0, f.cache.NumBoundResources())
	assert.Empty(t, r.Errors())
}

func TestGetVariable(t *testing.T) {
	captureReports(t)
	f := newFixture(t, metadata.AllowedTypes(metadata.ShaderVariableTypeMutable, metadata.ShaderVariableTypeDynamic))

	v := f.manager.GetVariable("g_Textures")
	require.NotNil(t, v)
	assert.Equal(t, "g_Textures", v.Name())
	assert.Equal(t, metadata.ShaderVariableTypeDynamic, v.Type())
	assert.Equal(t, uint32(3), v.ArraySize())
	assert.Same(t, v, f.manager.GetVariable("g_Textures"))

	assert.Nil(t, f.manager.GetVariable("g_textures"), "lookup is case sensitive")
	assert.Nil(t, f.manager.GetVariable("g_Texture "))
	assert.Nil(t, f.manager.GetVariable(""))
	assert.Nil(t, f.manager.GetVariable("g_Constants"), "static variables are filtered out")
	assert.Nil(t, f.manager.GetVariable("g_Missing"))
}

func TestGetVariableByIndexOutOfRange(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagMutable)

	assert.Nil(t, f.manager.GetVariableByIndex(-1))
	assert.Nil(t, f.manager.GetVariableByIndex(f.manager.GetVariableCount()))
	assert.Len(t, r.Errors(), 2)

	other := newFixture(t, metadata.ShaderVariableTypeFlagMutable)
	r.Reset()
	assert.Equal(t, -1, f.manager.GetVariableIndex(other.manager.GetVariableByIndex(0)))
	assert.Len(t, r.Errors(), 1)
}

func TestBindResourcesNilMapping(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	require.NoError(t, f.manager.BindResources(testObjects(t, ""), 0))
	bound := f.cache.NumBoundResources()
	require.NotZero(t, bound)
	r.Reset()

	for _, flags := range []metadata.BindShaderResourcesFlags{
		0,
		metadata.BindShaderResourcesResetBindings,
		metadata.BindShaderResourcesResetBindings | metadata.BindShaderResourcesUpdateUnresolved | metadata.BindShaderResourcesAllResolved,
	} {
		r.Reset()
		err := f.manager.BindResources(nil, flags)
		assert.ErrorIs(t, err, core.ErrNilResourceMapping)
		assert.Len(t, r.Errors(), 1, "flags %s", flags)
		assert.Equal(t, bound, f.cache.NumBoundResources(), "flags %s", flags)
		assert.Zero(t, f.cache.PendingWriteCount())
	}
}

func TestBindResourcesFullCoverage(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	err := f.manager.BindResources(testObjects(t, ""), metadata.BindShaderResourcesAllResolved)
	require.NoError(t, err)
	assert.Empty(t, r.Errors())

	f.forEachElement(func(res *VkResource, i uint32) {
		if res.IsImmutableSampler() {
			assert.False(t, res.IsBound(i, f.cache), res.PrintName(i))
			return
		}
		assert.True(t, res.IsBound(i, f.cache), res.PrintName(i))
	})
	// Every element except the immutable sampler.
	assert.Equal(t, 9, f.cache.NumBoundResources())
}

func TestBindResourcesReportsUnresolved(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	mapping := testObjects(t, "")
	mapping.RemoveResourceByName("g_Textures", 1, false)
	mapping.RemoveResourceByName("g_Lights", 0, true)

	err := f.manager.BindResources(mapping, metadata.BindShaderResourcesAllResolved)
	require.Error(t, err)

	errs := r.Errors()
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "'g_Textures[1]'")
	assert.Contains(t, errs[1], "'g_Lights'")

	var unresolved *UnresolvedResourceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "TestShader", unresolved.Shader)
	assert.Equal(t, "g_Textures", unresolved.Variable)
	assert.Equal(t, uint32(1), unresolved.ArrayIndex)

	// The pass does not stop at the first failure.
	v := f.manager.GetVariable("g_Textures")
	assert.True(t, v.IsBound(0))
	assert.False(t, v.IsBound(1))
	assert.True(t, v.IsBound(2))
	assert.True(t, f.manager.GetVariable("g_DynSamplers").IsBound(1))
}

func TestBindResourcesMissingWithoutAllResolved(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	require.NoError(t, f.manager.BindResources(resources.NewResourceMapping(), 0))
	assert.Empty(t, r.Errors())
	assert.Zero(t, f.cache.NumBoundResources())
}

func TestBindResourcesAllResolvedAcceptsPriorBinding(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagDynamic)

	require.NoError(t, f.manager.BindResources(testObjects(t, ""), 0))
	r.Reset()

	// Nothing is found, but every element is already bound.
	require.NoError(t, f.manager.BindResources(resources.NewResourceMapping(), metadata.BindShaderResourcesAllResolved))
	assert.Empty(t, r.Errors())
}

func TestBindResourcesResetWithEmptyMapping(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	require.NoError(t, f.manager.BindResources(testObjects(t, ""), 0))
	require.NotZero(t, f.cache.NumBoundResources())
	r.Reset()

	require.NoError(t, f.manager.BindResources(resources.NewResourceMapping(), metadata.BindShaderResourcesResetBindings))
	assert.Empty(t, r.Errors())
	assert.NotEmpty(t, r.Warnings(), "unbinding non-dynamic variables is reported")
	assert.Zero(t, f.cache.NumBoundResources())
}

func TestBindResourcesUpdateUnresolvedKeepsBoundElements(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagDynamic)

	first := testObjects(t, "A")
	textures := f.manager.GetVariable("g_Textures")
	require.NoError(t, textures.Set(first.GetResource("g_Textures", 0)))

	second := testObjects(t, "B")
	require.NoError(t, f.manager.BindResources(second, metadata.BindShaderResourcesUpdateUnresolved))
	assert.Empty(t, r.Errors())

	res := textures.Resource()
	assert.Same(t, first.GetResource("g_Textures", 0), res.cachedResource(0, f.cache).Object)
	assert.Same(t, second.GetResource("g_Textures", 1), res.cachedResource(1, f.cache).Object)
	assert.Same(t, second.GetResource("g_Textures", 2), res.cachedResource(2, f.cache).Object)

	// Without the flag dynamic variables take the new objects.
	require.NoError(t, f.manager.BindResources(second, 0))
	assert.Same(t, second.GetResource("g_Textures", 0), res.cachedResource(0, f.cache).Object)
}

func TestBindResourcesResetThenUpdateUnresolved(t *testing.T) {
	captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagDynamic)

	first := testObjects(t, "A")
	require.NoError(t, f.manager.BindResources(first, 0))

	// The reset clears each element before the bound check, so every element
	// is resolved again.
	second := testObjects(t, "B")
	flags := metadata.BindShaderResourcesResetBindings | metadata.BindShaderResourcesUpdateUnresolved
	require.NoError(t, f.manager.BindResources(second, flags))

	f.forEachElement(func(res *VkResource, i uint32) {
		if res.VariableType != metadata.ShaderVariableTypeDynamic {
			return
		}
		assert.Same(t, second.GetResource(res.Name, i), res.cachedResource(i, f.cache).Object, res.PrintName(i))
	})
}

func TestBindResourcesSkipsImmutableSamplers(t *testing.T) {
	captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagStatic)

	sampler := f.manager.GetVariable("g_Sampler")
	require.NotNil(t, sampler)
	require.True(t, sampler.Resource().IsImmutableSampler())

	mapping := &countingMapping{ResourceMapping: testObjects(t, "")}
	require.NoError(t, f.manager.BindResources(mapping, metadata.BindShaderResourcesAllResolved))
	assert.False(t, sampler.IsBound(0))
	assert.Equal(t, 1, mapping.lookups, "only g_Constants is looked up")

	pinned := NewSamplerVk("Pinned")
	require.NoError(t, sampler.Set(pinned))
	for _, flags := range []metadata.BindShaderResourcesFlags{
		metadata.BindShaderResourcesResetBindings,
		metadata.BindShaderResourcesResetBindings | metadata.BindShaderResourcesAllResolved,
		metadata.BindShaderResourcesUpdateUnresolved,
	} {
		require.NoError(t, f.manager.BindResources(mapping, flags))
		assert.Same(t, pinned, sampler.Resource().cachedResource(0, f.cache).Object, "flags %s", flags)
	}
}

func TestBindIncompatibleObject(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	constants := f.manager.GetVariable("g_Constants")
	err := constants.Set(NewSamplerVk("NotABuffer"))
	assert.ErrorIs(t, err, ErrIncompatibleResource)
	assert.False(t, constants.IsBound(0))

	err = constants.Set(NewBufferVk("VertexData", 64, metadata.BindFlagVertexBuffer))
	assert.ErrorIs(t, err, ErrIncompatibleResource)

	err = f.manager.GetVariable("g_Texture").Set(NewTextureViewVk("UAV", metadata.ViewTypeUnorderedAccess))
	assert.ErrorIs(t, err, ErrIncompatibleResource)
	assert.Len(t, r.Errors(), 3)

	// Incompatible objects in the mapping are reported and the pass goes on.
	r.Reset()
	mapping := testObjects(t, "")
	mapping.RemoveResourceByName("g_Lights", 0, true)
	require.NoError(t, mapping.AddResource("g_Lights", NewSamplerVk("Wrong"), true))
	err = f.manager.BindResources(mapping, 0)
	assert.ErrorIs(t, err, ErrIncompatibleResource)
	assert.Len(t, r.Errors(), 1)
	assert.True(t, f.manager.GetVariable("g_DynSamplers").IsBound(1))
}

func TestBindArrayIndexOutOfRange(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagDynamic)

	samplers := f.manager.GetVariable("g_DynSamplers")
	err := samplers.SetArray([]metadata.DeviceObject{NewSamplerVk("S0"), NewSamplerVk("S1"), NewSamplerVk("S2")}, 0)
	assert.ErrorIs(t, err, ErrArrayIndexOutOfRange)
	assert.Len(t, r.Errors(), 1)
	assert.True(t, samplers.IsBound(0))
	assert.True(t, samplers.IsBound(1))
	assert.False(t, samplers.IsBound(2))
}

func TestNonDynamicRebindIsIgnored(t *testing.T) {
	r := captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagMutable)

	texture := f.manager.GetVariable("g_Texture")
	a := NewTextureViewVk("A", metadata.ViewTypeShaderResource)
	b := NewTextureViewVk("B", metadata.ViewTypeShaderResource)

	require.NoError(t, texture.Set(a))
	require.NoError(t, texture.Set(a))
	assert.Empty(t, r.Warnings())

	require.NoError(t, texture.Set(b))
	assert.Len(t, r.Warnings(), 1)
	assert.Same(t, a, texture.Resource().cachedResource(0, f.cache).Object)
}

func TestDescriptorWritesQueuedForAssignedSets(t *testing.T) {
	captureReports(t)
	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)

	// No descriptor set yet: nothing is queued.
	require.NoError(t, f.manager.GetVariable("g_Texture").Set(NewTextureViewVk("Early", metadata.ViewTypeShaderResource)))
	assert.Zero(t, f.cache.PendingWriteCount())

	var set vk.DescriptorSet
	f.cache.AssignDescriptorSet(VULKAN_STATIC_MUTABLE_SET, set)
	f.cache.AssignDescriptorSet(VULKAN_DYNAMIC_SET, set)

	require.NoError(t, f.manager.BindResources(testObjects(t, ""), 0))
	writes := f.cache.FlushWrites()
	// g_Constants and g_Data; g_Texture is already bound and dynamic
	// variables are written at draw time.
	require.Len(t, writes, 2)
	assert.Equal(t, uint32(0), writes[0].DstBinding)
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, writes[0].DescriptorType)
	require.Len(t, writes[0].PBufferInfo, 1)
	assert.Equal(t, vk.DeviceSize(256), writes[0].PBufferInfo[0].Range)

	assert.Equal(t, uint32(3), writes[1].DstBinding)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, writes[1].DescriptorType)
	assert.Zero(t, f.cache.PendingWriteCount())
}

func TestDestroyReleasesBlock(t *testing.T) {
	captureReports(t)

	layout := newTestLayout(t)
	cache := NewShaderResourceCacheVk(CacheContentTypeSRBResources)
	layout.InitializeResourceCache(cache)
	allocator := memory.NewHeapAllocator()

	m := NewShaderVariableManagerVk()
	require.NoError(t, m.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagsAll, cache))
	v := m.GetVariable("g_Texture")
	require.NotNil(t, v)

	require.NoError(t, m.Destroy(allocator))
	stats := allocator.Stats()
	assert.Equal(t, uint64(1), stats.Frees)
	assert.Zero(t, stats.LiveBlocks)
	assert.Zero(t, stats.LiveBytes)
	assert.False(t, m.IsInitialized())
	assert.Zero(t, m.GetVariableCount())
	assert.Nil(t, m.GetVariable("g_Texture"))

	// A second Destroy is a no-op.
	require.NoError(t, m.Destroy(allocator))
	assert.Equal(t, uint64(1), allocator.Stats().Frees)
}

func TestDestroyWithDifferentAllocator(t *testing.T) {
	r := captureReports(t)
	withValidation(t, true)

	layout := newTestLayout(t)
	cache := NewShaderResourceCacheVk(CacheContentTypeSRBResources)
	layout.InitializeResourceCache(cache)
	allocator := memory.NewHeapAllocator()

	m := NewShaderVariableManagerVk()
	require.NoError(t, m.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagsAll, cache))

	err := m.Destroy(memory.NewHeapAllocator())
	assert.ErrorIs(t, err, memory.ErrUnknownBlock)
	errs := r.Errors()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "Inconsistent allocator")
	assert.Equal(t, 1, allocator.Stats().LiveBlocks)

	// The refused block stays with the manager until the right allocator
	// takes it back.
	assert.True(t, m.IsInitialized())
	assert.Equal(t, len(canonicalNames), m.GetVariableCount())
	require.NoError(t, m.Destroy(allocator))
	assert.False(t, m.IsInitialized())
	assert.Zero(t, allocator.Stats().LiveBlocks)
}

// valueAllocator is an Allocator stored by value that cannot be compared
// with ==.
type valueAllocator struct {
	heap *memory.HeapAllocator
	tags map[string]string
}

func (a valueAllocator) Allocate(description string, size uint64) (*memory.Block, error) {
	return a.heap.Allocate(description, size)
}

func (a valueAllocator) Free(block *memory.Block) error {
	return a.heap.Free(block)
}

func TestDestroyWithUncomparableAllocator(t *testing.T) {
	r := captureReports(t)
	withValidation(t, true)

	layout := newTestLayout(t)
	cache := NewShaderResourceCacheVk(CacheContentTypeSRBResources)
	layout.InitializeResourceCache(cache)
	allocator := valueAllocator{heap: memory.NewHeapAllocator(), tags: map[string]string{"owner": "test"}}

	m := NewShaderVariableManagerVk()
	require.NoError(t, m.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagsAll, cache))
	assert.NotPanics(t, func() {
		require.NoError(t, m.Destroy(allocator))
	})
	assert.Empty(t, r.Errors())
	assert.Zero(t, allocator.heap.Stats().LiveBlocks)

	// A heap allocator is a different type and is still told apart.
	assert.False(t, sameAllocator(allocator, allocator.heap))
	assert.True(t, sameAllocator(allocator.heap, allocator.heap))
	assert.False(t, sameAllocator(memory.NewHeapAllocator(), allocator.heap))
}

// dropManager initializes a manager over a layout named shaderName and, when
// destroy is false, lets it go without calling Destroy.
func dropManager(t *testing.T, shaderName string, destroy bool) {
	t.Helper()
	layout, err := NewShaderResourceLayoutVk(shaderName, testAttribs())
	require.NoError(t, err)
	cache := NewShaderResourceCacheVk(CacheContentTypeSRBResources)
	layout.InitializeResourceCache(cache)
	allocator := memory.NewHeapAllocator()

	m := NewShaderVariableManagerVk()
	require.NoError(t, m.Initialize(layout, allocator, metadata.ShaderVariableTypeFlagsAll, cache))
	if destroy {
		require.NoError(t, m.Destroy(allocator))
	}
}

// collectedReports runs the garbage collector until a report naming
// shaderName shows up or the attempts run out.
func collectedReports(r *reports, shaderName string, attempts int) []string {
	var found []string
	for i := 0; i < attempts && len(found) == 0; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
		for _, msg := range r.Errors() {
			if strings.Contains(msg, "'"+shaderName+"'") && strings.Contains(msg, "without calling Destroy()") {
				found = append(found, msg)
			}
		}
	}
	return found
}

func TestManagerDroppedWithoutDestroyIsReported(t *testing.T) {
	r := captureReports(t)
	withValidation(t, true)

	dropManager(t, "LeakedShader", false)
	found := collectedReports(r, "LeakedShader", 50)
	require.Len(t, found, 1)
	assert.Contains(t, found[0], "Shader variable manager for shader 'LeakedShader' was released without calling Destroy()")
}

func TestManagerDestroyedIsNotReported(t *testing.T) {
	r := captureReports(t)
	withValidation(t, true)

	dropManager(t, "ReleasedShader", true)
	assert.Empty(t, collectedReports(r, "ReleasedShader", 10))
}

func TestDestroyAllocatorCheckNeedsValidation(t *testing.T) {
	r := captureReports(t)
	withValidation(t, false)

	f := newFixture(t, metadata.ShaderVariableTypeFlagsAll)
	err := f.manager.Destroy(memory.NewHeapAllocator())
	assert.ErrorIs(t, err, memory.ErrUnknownBlock)
	for _, msg := range r.Errors() {
		assert.NotContains(t, msg, "Inconsistent allocator")
	}
}
