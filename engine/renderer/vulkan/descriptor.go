package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

// DescriptorType returns the Vulkan descriptor type used for resources of the
// given kind.
func DescriptorType(kind metadata.ShaderResourceKind) vk.DescriptorType {
	switch kind {
	case metadata.ShaderResourceKindUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.ShaderResourceKindStorageBuffer, metadata.ShaderResourceKindAtomicCounter:
		return vk.DescriptorTypeStorageBuffer
	case metadata.ShaderResourceKindUniformTexelBuffer:
		return vk.DescriptorTypeUniformTexelBuffer
	case metadata.ShaderResourceKindStorageTexelBuffer:
		return vk.DescriptorTypeStorageTexelBuffer
	case metadata.ShaderResourceKindStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.ShaderResourceKindSampledImage:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.ShaderResourceKindSeparateImage:
		return vk.DescriptorTypeSampledImage
	case metadata.ShaderResourceKindSeparateSampler:
		return vk.DescriptorTypeSampler
	}
	return vk.DescriptorType(0x7FFFFFFF)
}

// descriptorSetIndex returns the set a variable of the given type is placed in.
func descriptorSetIndex(varType metadata.ShaderVariableType) uint32 {
	if varType == metadata.ShaderVariableTypeDynamic {
		return VULKAN_DYNAMIC_SET
	}
	return VULKAN_STATIC_MUTABLE_SET
}

// imageLayout returns the layout an image is expected in when accessed through
// a resource of the given kind.
func imageLayout(kind metadata.ShaderResourceKind) vk.ImageLayout {
	if kind == metadata.ShaderResourceKindStorageImage {
		return vk.ImageLayoutGeneral
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}
