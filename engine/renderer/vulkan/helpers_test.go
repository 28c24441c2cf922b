package vulkan

import (
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-binding/engine/resources"
)

// reports collects the warnings and errors logged while a test runs.
type reports struct {
	mu       sync.Mutex
	errors   []string
	warnings []string
}

func (r *reports) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *reports) Warnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.warnings...)
}

func (r *reports) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = nil
	r.warnings = nil
}

func captureReports(t *testing.T) *reports {
	t.Helper()
	r := &reports{}
	prev := core.SetDebugMessageCallback(func(level core.LogLevel, msg string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch level {
		case core.ErrorLevel, core.FatalLevel:
			r.errors = append(r.errors, msg)
		case core.WarnLevel:
			r.warnings = append(r.warnings, msg)
		}
	})
	core.SetLogOutput(io.Discard)
	t.Cleanup(func() {
		core.SetDebugMessageCallback(prev)
		core.SetLogOutput(os.Stderr)
	})
	return r
}

func withValidation(t *testing.T, enabled bool) {
	t.Helper()
	prev := core.EnableValidation(enabled)
	t.Cleanup(func() { core.EnableValidation(prev) })
}

// testAttribs declares resources of every variable type, deliberately not
// grouped by type, including an array of each dynamic kind and an immutable
// sampler.
func testAttribs() []metadata.ShaderResourceAttribs {
	return []metadata.ShaderResourceAttribs{
		metadata.NewShaderResourceAttribs("g_Constants", metadata.ShaderResourceKindUniformBuffer, 1, metadata.ShaderVariableTypeStatic),
		metadata.NewShaderResourceAttribs("g_Texture", metadata.ShaderResourceKindSeparateImage, 1, metadata.ShaderVariableTypeMutable),
		metadata.NewShaderResourceAttribs("g_Sampler", metadata.ShaderResourceKindSeparateSampler, 1, metadata.ShaderVariableTypeStatic).WithStaticSampler(0),
		metadata.NewShaderResourceAttribs("g_Textures", metadata.ShaderResourceKindSeparateImage, 3, metadata.ShaderVariableTypeDynamic),
		metadata.NewShaderResourceAttribs("g_Data", metadata.ShaderResourceKindStorageBuffer, 1, metadata.ShaderVariableTypeMutable),
		metadata.NewShaderResourceAttribs("g_DynSamplers", metadata.ShaderResourceKindSeparateSampler, 2, metadata.ShaderVariableTypeDynamic),
		metadata.NewShaderResourceAttribs("g_Lights", metadata.ShaderResourceKindUniformBuffer, 1, metadata.ShaderVariableTypeDynamic),
	}
}

// canonicalNames is the slot order of testAttribs with every type allowed.
var canonicalNames = []string{
	"g_Constants", "g_Sampler",
	"g_Texture", "g_Data",
	"g_Textures", "g_DynSamplers", "g_Lights",
}

func newTestLayout(t *testing.T) *ShaderResourceLayoutVk {
	t.Helper()
	l, err := NewShaderResourceLayoutVk("TestShader", testAttribs())
	require.NoError(t, err)
	return l
}

type testFixture struct {
	layout    *ShaderResourceLayoutVk
	cache     *ShaderResourceCacheVk
	allocator *memory.HeapAllocator
	manager   *ShaderVariableManagerVk
}

func newFixture(t *testing.T, allowed metadata.ShaderVariableTypeFlags) *testFixture {
	t.Helper()
	f := &testFixture{
		layout:    newTestLayout(t),
		cache:     NewShaderResourceCacheVk(CacheContentTypeSRBResources),
		allocator: memory.NewHeapAllocator(),
		manager:   NewShaderVariableManagerVk(),
	}
	f.layout.InitializeResourceCache(f.cache)
	require.NoError(t, f.manager.Initialize(f.layout, f.allocator, allowed, f.cache))
	t.Cleanup(func() { _ = f.manager.Destroy(f.allocator) })
	return f
}

func (f *testFixture) names() []string {
	names := make([]string, 0, f.manager.GetVariableCount())
	for i := 0; i < f.manager.GetVariableCount(); i++ {
		names = append(names, f.manager.GetVariableByIndex(i).Name())
	}
	return names
}

// forEachElement calls fn for every array element of every resource in the
// layout.
func (f *testFixture) forEachElement(fn func(res *VkResource, arrayIndex uint32)) {
	for vt := metadata.ShaderVariableTypeStatic; vt < metadata.ShaderVariableTypeNumTypes; vt++ {
		for r := uint32(0); r < f.layout.GetResourceCount(vt); r++ {
			res := f.layout.GetResource(vt, r)
			for i := uint32(0); i < res.ArraySize; i++ {
				fn(res, i)
			}
		}
	}
}

// testObjects builds a mapping that resolves every element of testAttribs,
// the immutable sampler included.
func testObjects(t *testing.T, suffix string) *resources.ResourceMapping {
	t.Helper()
	rm := resources.NewResourceMapping()

	require.NoError(t, rm.AddResource("g_Constants", NewBufferVk("Constants"+suffix, 256, metadata.BindFlagUniformBuffer), true))
	require.NoError(t, rm.AddResource("g_Lights", NewBufferVk("Lights"+suffix, 1024, metadata.BindFlagUniformBuffer), true))
	require.NoError(t, rm.AddResource("g_Texture", NewTextureViewVk("Texture"+suffix, metadata.ViewTypeShaderResource), true))
	require.NoError(t, rm.AddResource("g_Sampler", NewSamplerVk("Sampler"+suffix), true))

	data := NewBufferVk("Data"+suffix, 4096, metadata.BindFlagShaderResource)
	dataView, err := data.CreateView("DataSRV"+suffix, metadata.ViewTypeShaderResource)
	require.NoError(t, err)
	require.NoError(t, rm.AddResource("g_Data", dataView, true))

	require.NoError(t, rm.AddResourceArray("g_Textures", 0, []metadata.DeviceObject{
		NewTextureViewVk("Textures0"+suffix, metadata.ViewTypeShaderResource),
		NewTextureViewVk("Textures1"+suffix, metadata.ViewTypeShaderResource),
		NewTextureViewVk("Textures2"+suffix, metadata.ViewTypeShaderResource),
	}, true))
	require.NoError(t, rm.AddResourceArray("g_DynSamplers", 0, []metadata.DeviceObject{
		NewSamplerVk("DynSampler0" + suffix),
		NewSamplerVk("DynSampler1" + suffix),
	}, true))
	return rm
}

// countingMapping counts lookups made through it.
type countingMapping struct {
	metadata.ResourceMapping
	lookups int
}

func (m *countingMapping) GetResource(name string, arrayIndex uint32) metadata.DeviceObject {
	m.lookups++
	return m.ResourceMapping.GetResource(name, arrayIndex)
}
