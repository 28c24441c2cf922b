package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

var (
	ErrArrayIndexOutOfRange  = errors.New("array index out of range")
	ErrIncompatibleResource  = errors.New("incompatible resource")
	ErrDuplicateResourceName = errors.New("duplicate resource name")
	ErrInvalidArraySize      = errors.New("invalid array size")
	ErrInvalidResource       = errors.New("invalid resource")
)

// VkResource is a shader resource placed in a layout: its reflection
// attributes plus the descriptor set, binding and cache offset assigned to it.
type VkResource struct {
	metadata.ShaderResourceAttribs

	/** @brief Descriptor set the resource is placed in. */
	DescriptorSet uint32
	/** @brief Binding within the descriptor set. */
	Binding uint32
	/** @brief Offset of the first array element within the cached set. */
	CacheOffset uint32

	parentLayout *ShaderResourceLayoutVk
}

func (r *VkResource) DescriptorType() vk.DescriptorType {
	return DescriptorType(r.Kind)
}

func (r *VkResource) cachedResource(arrayIndex uint32, cache *ShaderResourceCacheVk) *CachedResource {
	return cache.Set(r.DescriptorSet).Resource(r.CacheOffset + arrayIndex)
}

// IsBound reports whether an object is bound to the given array element.
func (r *VkResource) IsBound(arrayIndex uint32, cache *ShaderResourceCacheVk) bool {
	if arrayIndex >= r.ArraySize {
		return false
	}
	if r.DescriptorSet >= cache.NumSets() || r.CacheOffset+arrayIndex >= cache.Set(r.DescriptorSet).Size() {
		return false
	}
	return r.cachedResource(arrayIndex, cache).Object != nil
}

// BindResource binds obj to the given array element in cache. A nil obj
// unbinds the element. Failures are logged and returned.
func (r *VkResource) BindResource(obj metadata.DeviceObject, arrayIndex uint32, cache *ShaderResourceCacheVk) error {
	if arrayIndex >= r.ArraySize {
		err := fmt.Errorf("%w: index %d, array size of shader variable '%s' is %d", ErrArrayIndexOutOfRange, arrayIndex, r.Name, r.ArraySize)
		core.LogError("Failed to bind resource: %s", err)
		return err
	}
	dst := r.cachedResource(arrayIndex, cache)
	core.Verify(dst.Kind == r.Kind, "cached resource kind %s does not match %s of '%s'", dst.Kind, r.Kind, r.Name)

	if obj == nil {
		if dst.Object != nil && r.VariableType != metadata.ShaderVariableTypeDynamic {
			core.LogWarn("Shader variable '%s' in shader '%s' is not dynamic but is being unbound. Use another shader resource binding or declare the variable dynamic.",
				r.PrintName(arrayIndex), r.parentLayout.ShaderName())
		}
		dst.Object = nil
		return nil
	}

	if err := r.checkObject(obj); err != nil {
		core.LogError("Failed to bind '%s' to shader variable '%s' in shader '%s': %s", obj.Name(), r.PrintName(arrayIndex), r.parentLayout.ShaderName(), err)
		return err
	}

	if dst.Object == obj {
		return nil
	}
	if dst.Object != nil && r.VariableType != metadata.ShaderVariableTypeDynamic {
		// The descriptor may already be referenced by recorded command buffers.
		core.LogWarn("Non-dynamic shader variable '%s' in shader '%s' is already bound to '%s', '%s' is ignored. Use another shader resource binding or declare the variable dynamic.",
			r.PrintName(arrayIndex), r.parentLayout.ShaderName(), dst.Object.Name(), obj.Name())
		return nil
	}

	dst.Object = obj
	if r.VariableType != metadata.ShaderVariableTypeDynamic {
		if handle, ok := cache.Set(r.DescriptorSet).Handle(); ok {
			cache.queueWrite(r.descriptorWrite(handle, arrayIndex, obj))
		}
	}
	return nil
}

// checkObject verifies that obj can be bound to a resource of this kind.
func (r *VkResource) checkObject(obj metadata.DeviceObject) error {
	switch r.Kind {
	case metadata.ShaderResourceKindUniformBuffer:
		b, ok := obj.(*BufferVk)
		if !ok {
			return r.incompatible(obj, "a buffer")
		}
		if !core.HasFlag(b.BindFlags, metadata.BindFlagUniformBuffer) {
			return fmt.Errorf("%w: buffer '%s' was not created with the uniform buffer bind flag", ErrIncompatibleResource, b.Name())
		}
	case metadata.ShaderResourceKindStorageBuffer:
		v, ok := obj.(*BufferViewVk)
		if !ok || (v.ViewType != metadata.ViewTypeShaderResource && v.ViewType != metadata.ViewTypeUnorderedAccess) {
			return r.incompatible(obj, "a shader resource or unordered access buffer view")
		}
	case metadata.ShaderResourceKindUniformTexelBuffer:
		v, ok := obj.(*BufferViewVk)
		if !ok || v.ViewType != metadata.ViewTypeShaderResource {
			return r.incompatible(obj, "a shader resource buffer view")
		}
	case metadata.ShaderResourceKindStorageTexelBuffer, metadata.ShaderResourceKindAtomicCounter:
		v, ok := obj.(*BufferViewVk)
		if !ok || v.ViewType != metadata.ViewTypeUnorderedAccess {
			return r.incompatible(obj, "an unordered access buffer view")
		}
	case metadata.ShaderResourceKindStorageImage:
		v, ok := obj.(*TextureViewVk)
		if !ok || v.ViewType != metadata.ViewTypeUnorderedAccess {
			return r.incompatible(obj, "an unordered access texture view")
		}
	case metadata.ShaderResourceKindSampledImage, metadata.ShaderResourceKindSeparateImage:
		v, ok := obj.(*TextureViewVk)
		if !ok || v.ViewType != metadata.ViewTypeShaderResource {
			return r.incompatible(obj, "a shader resource texture view")
		}
		if r.Kind == metadata.ShaderResourceKindSampledImage && !r.HasStaticSampler() && v.Sampler == nil {
			core.LogWarn("No sampler is assigned to texture view '%s' bound to combined image sampler '%s'", v.Name(), r.Name)
		}
	case metadata.ShaderResourceKindSeparateSampler:
		if _, ok := obj.(*SamplerVk); !ok {
			return r.incompatible(obj, "a sampler")
		}
	default:
		return fmt.Errorf("%w: unknown resource kind %s", ErrInvalidResource, r.Kind)
	}
	return nil
}

func (r *VkResource) incompatible(obj metadata.DeviceObject, want string) error {
	return fmt.Errorf("%w: %s resource expects %s, got %s '%s'", ErrIncompatibleResource, r.Kind, want, obj.ObjectType(), obj.Name())
}

func (r *VkResource) descriptorWrite(set vk.DescriptorSet, arrayIndex uint32, obj metadata.DeviceObject) vk.WriteDescriptorSet {
	w := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      r.Binding,
		DstArrayElement: arrayIndex,
		DescriptorCount: 1,
		DescriptorType:  r.DescriptorType(),
	}
	switch o := obj.(type) {
	case *BufferVk:
		w.PBufferInfo = []vk.DescriptorBufferInfo{{
			Buffer: o.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(o.Size),
		}}
	case *BufferViewVk:
		if r.Kind == metadata.ShaderResourceKindUniformTexelBuffer || r.Kind == metadata.ShaderResourceKindStorageTexelBuffer {
			w.PTexelBufferView = []vk.BufferView{o.Handle}
		} else {
			w.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: o.Buffer.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(o.Buffer.Size),
			}}
		}
	case *TextureViewVk:
		info := vk.DescriptorImageInfo{
			ImageView:   o.Handle,
			ImageLayout: imageLayout(r.Kind),
		}
		if r.Kind == metadata.ShaderResourceKindSampledImage && !r.HasStaticSampler() && o.Sampler != nil {
			info.Sampler = o.Sampler.Handle
		}
		w.PImageInfo = []vk.DescriptorImageInfo{info}
	case *SamplerVk:
		w.PImageInfo = []vk.DescriptorImageInfo{{
			Sampler: o.Handle,
		}}
	}
	return w
}

// ShaderResourceLayoutVk groups the resources of a shader by variable type.
// Within a type resources keep their declaration order.
type ShaderResourceLayoutVk struct {
	shaderName string
	resources  [metadata.ShaderVariableTypeNumTypes][]VkResource
	setSizes   [VULKAN_MAX_DESCRIPTOR_SETS]uint32
}

// NewShaderResourceLayoutVk places every resource of attribs into a
// descriptor set and assigns bindings in canonical variable type order.
func NewShaderResourceLayoutVk(shaderName string, attribs []metadata.ShaderResourceAttribs) (*ShaderResourceLayoutVk, error) {
	l := &ShaderResourceLayoutVk{
		shaderName: shaderName,
	}

	names := make(map[string]struct{}, len(attribs))
	var counts [metadata.ShaderVariableTypeNumTypes]int
	for i := range attribs {
		a := &attribs[i]
		if a.Name == "" {
			return nil, fmt.Errorf("shader '%s': resource %d: %w: empty name", shaderName, i, ErrInvalidResource)
		}
		if _, dup := names[a.Name]; dup {
			return nil, fmt.Errorf("shader '%s': %w '%s'", shaderName, ErrDuplicateResourceName, a.Name)
		}
		names[a.Name] = struct{}{}
		if a.ArraySize == 0 {
			return nil, fmt.Errorf("shader '%s': resource '%s': %w", shaderName, a.Name, ErrInvalidArraySize)
		}
		if a.VariableType < 0 || a.VariableType >= metadata.ShaderVariableTypeNumTypes {
			return nil, fmt.Errorf("shader '%s': resource '%s': %w: variable type %s", shaderName, a.Name, ErrInvalidResource, a.VariableType)
		}
		if a.Kind < 0 || a.Kind >= metadata.ShaderResourceKindNumKinds {
			return nil, fmt.Errorf("shader '%s': resource '%s': %w: kind %s", shaderName, a.Name, ErrInvalidResource, a.Kind)
		}
		counts[a.VariableType]++
	}

	for vt := range l.resources {
		l.resources[vt] = make([]VkResource, 0, counts[vt])
	}
	for _, a := range attribs {
		l.resources[a.VariableType] = append(l.resources[a.VariableType], VkResource{
			ShaderResourceAttribs: a,
		})
	}

	var bindings [VULKAN_MAX_DESCRIPTOR_SETS]uint32
	for vt := metadata.ShaderVariableTypeStatic; vt < metadata.ShaderVariableTypeNumTypes; vt++ {
		set := descriptorSetIndex(vt)
		for r := range l.resources[vt] {
			res := &l.resources[vt][r]
			res.parentLayout = l
			res.DescriptorSet = set
			res.Binding = bindings[set]
			res.CacheOffset = l.setSizes[set]
			bindings[set]++
			l.setSizes[set] += res.ArraySize
		}
	}
	for set, n := range bindings {
		if n > VULKAN_SHADER_MAX_BINDINGS {
			return nil, fmt.Errorf("shader '%s': descriptor set %d uses %d bindings, max is %d", shaderName, set, n, VULKAN_SHADER_MAX_BINDINGS)
		}
	}

	return l, nil
}

func (l *ShaderResourceLayoutVk) ShaderName() string {
	return l.shaderName
}

// GetResourceCount returns the number of resources of the given type.
func (l *ShaderResourceLayoutVk) GetResourceCount(varType metadata.ShaderVariableType) uint32 {
	return uint32(len(l.resources[varType]))
}

// GetResource returns resource r of the given type.
func (l *ShaderResourceLayoutVk) GetResource(varType metadata.ShaderVariableType, r uint32) *VkResource {
	return &l.resources[varType][r]
}

// GetTotalResourceCount returns the number of resources of every type.
func (l *ShaderResourceLayoutVk) GetTotalResourceCount() uint32 {
	var n uint32
	for vt := range l.resources {
		n += uint32(len(l.resources[vt]))
	}
	return n
}

// InitializeResourceCache sizes cache for every resource in the layout.
func (l *ShaderResourceLayoutVk) InitializeResourceCache(cache *ShaderResourceCacheVk) {
	cache.InitializeSets(l.setSizes[:])
	for vt := range l.resources {
		for r := range l.resources[vt] {
			res := &l.resources[vt][r]
			cache.InitializeResources(res.DescriptorSet, res.CacheOffset, res.ArraySize, res.Kind)
		}
	}
}

// InitializeStaticResources copies the static resources bound in src into
// dst. Static variables with no object bound in src are reported.
func (l *ShaderResourceLayoutVk) InitializeStaticResources(src, dst *ShaderResourceCacheVk) error {
	var errs []error
	for r := range l.resources[metadata.ShaderVariableTypeStatic] {
		res := &l.resources[metadata.ShaderVariableTypeStatic][r]
		if res.IsImmutableSampler() {
			continue
		}
		for i := uint32(0); i < res.ArraySize; i++ {
			obj := res.cachedResource(i, src).Object
			if obj == nil {
				core.LogError("No resource is bound to static shader variable '%s' in shader '%s'", res.PrintName(i), l.shaderName)
				errs = append(errs, &UnresolvedResourceError{Shader: l.shaderName, Variable: res.Name, ArrayIndex: i, ArraySize: res.ArraySize})
				continue
			}
			if err := res.BindResource(obj, i, dst); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
