package vulkan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-binding/engine/memory"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

func newTestProgram(t *testing.T, allocator memory.Allocator) *ShaderProgramVk {
	t.Helper()
	p, err := NewShaderProgramVk("TestShader", testAttribs(), allocator)
	require.NoError(t, err)
	return p
}

func TestShaderProgramStaticVariables(t *testing.T) {
	r := captureReports(t)
	allocator := memory.NewHeapAllocator()
	p := newTestProgram(t, allocator)

	assert.Equal(t, "TestShader", p.Name())
	assert.Equal(t, 2, p.GetStaticVariableCount())
	assert.Equal(t, "g_Constants", p.GetStaticVariableByIndex(0).Name())
	assert.Nil(t, p.GetStaticVariable("g_Texture"))

	require.NoError(t, p.BindStaticResources(testObjects(t, ""), metadata.BindShaderResourcesAllResolved))
	assert.True(t, p.GetStaticVariable("g_Constants").IsBound(0))
	assert.False(t, p.GetStaticVariable("g_Sampler").IsBound(0))
	assert.Empty(t, r.Errors())

	require.NoError(t, p.Destroy())
	assert.Zero(t, allocator.Stats().LiveBlocks)
}

func TestShaderResourceBindingLifecycle(t *testing.T) {
	r := captureReports(t)
	allocator := memory.NewHeapAllocator()
	p := newTestProgram(t, allocator)
	mapping := testObjects(t, "")

	require.NoError(t, p.BindStaticResources(mapping, 0))

	srb, err := p.CreateResourceBinding(true)
	require.NoError(t, err)
	assert.Same(t, p, srb.Program())
	assert.True(t, srb.StaticResourcesInitialized())
	assert.Equal(t, 5, srb.GetVariableCount())
	assert.Equal(t, uint64(2), allocator.Stats().Allocations)

	// Static resources are copied into the binding.
	constants := p.Layout().GetResource(metadata.ShaderVariableTypeStatic, 0)
	assert.Same(t, mapping.GetResource("g_Constants", 0), constants.cachedResource(0, srb.Cache()).Object)
	assert.False(t, srb.IsBound())

	assert.Nil(t, srb.GetVariable("g_Constants"))
	assert.Len(t, r.Warnings(), 1)

	require.NoError(t, srb.BindResources(mapping, metadata.BindShaderResourcesAllResolved))
	assert.True(t, srb.IsBound())
	assert.Empty(t, r.Errors())

	r.Reset()
	require.NoError(t, srb.InitializeStaticResources())
	assert.Len(t, r.Warnings(), 1)

	require.NoError(t, srb.Destroy())
	require.NoError(t, p.Destroy())
	stats := allocator.Stats()
	assert.Zero(t, stats.LiveBlocks)
	assert.Equal(t, uint64(2), stats.Frees)
}

func TestShaderResourceBindingUnboundStatics(t *testing.T) {
	r := captureReports(t)
	allocator := memory.NewHeapAllocator()
	p := newTestProgram(t, allocator)
	t.Cleanup(func() { _ = p.Destroy() })

	srb, err := p.CreateResourceBinding(true)
	require.Error(t, err)
	require.NotNil(t, srb)
	t.Cleanup(func() { _ = srb.Destroy() })

	var unresolved *UnresolvedResourceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "g_Constants", unresolved.Variable)
	// The immutable sampler is not reported.
	assert.Len(t, r.Errors(), 1)
	assert.True(t, srb.StaticResourcesInitialized())
}

func TestShaderResourceBindingsAreIndependent(t *testing.T) {
	captureReports(t)
	allocator := memory.NewHeapAllocator()
	p := newTestProgram(t, allocator)
	t.Cleanup(func() { _ = p.Destroy() })

	a, err := p.CreateResourceBinding(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Destroy() })
	b, err := p.CreateResourceBinding(false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Destroy() })

	require.NoError(t, a.GetVariable("g_Texture").Set(NewTextureViewVk("OnlyA", metadata.ViewTypeShaderResource)))
	assert.True(t, a.GetVariable("g_Texture").IsBound(0))
	assert.False(t, b.GetVariable("g_Texture").IsBound(0))
	assert.False(t, a.StaticResourcesInitialized())
}
