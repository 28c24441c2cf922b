package metadata

import (
	"fmt"
	"strings"
)

/**
 * @brief Describes how often a shader variable is expected to change.
 */
type ShaderVariableType int

const (
	/** @brief Set once per shader through the shader object itself. */
	ShaderVariableTypeStatic ShaderVariableType = iota
	/** @brief Set once per shader resource binding, not changed afterwards. */
	ShaderVariableTypeMutable
	/** @brief May be changed any number of times between draw calls. */
	ShaderVariableTypeDynamic
	/** @brief The number of variable types, not a valid type. */
	ShaderVariableTypeNumTypes
)

var shaderVariableTypeNames = [ShaderVariableTypeNumTypes]string{
	ShaderVariableTypeStatic:  "static",
	ShaderVariableTypeMutable: "mutable",
	ShaderVariableTypeDynamic: "dynamic",
}

func (t ShaderVariableType) String() string {
	if t < 0 || t >= ShaderVariableTypeNumTypes {
		return fmt.Sprintf("ShaderVariableType(%d)", int(t))
	}
	return shaderVariableTypeNames[t]
}

func ShaderVariableTypeFromString(s string) (ShaderVariableType, error) {
	for t, name := range shaderVariableTypeNames {
		if strings.EqualFold(s, name) {
			return ShaderVariableType(t), nil
		}
	}
	return 0, fmt.Errorf("string %s is not a valid ShaderVariableType", s)
}

/** @brief A set of shader variable types. */
type ShaderVariableTypeFlags uint32

const (
	ShaderVariableTypeFlagStatic  ShaderVariableTypeFlags = 1 << ShaderVariableTypeStatic
	ShaderVariableTypeFlagMutable ShaderVariableTypeFlags = 1 << ShaderVariableTypeMutable
	ShaderVariableTypeFlagDynamic ShaderVariableTypeFlags = 1 << ShaderVariableTypeDynamic

	ShaderVariableTypeFlagsNone ShaderVariableTypeFlags = 0
	ShaderVariableTypeFlagsAll                          = ShaderVariableTypeFlagStatic | ShaderVariableTypeFlagMutable | ShaderVariableTypeFlagDynamic
)

// AllowedTypes builds the set holding exactly types.
func AllowedTypes(types ...ShaderVariableType) ShaderVariableTypeFlags {
	var f ShaderVariableTypeFlags
	for _, t := range types {
		f |= 1 << t
	}
	return f
}

func (f ShaderVariableTypeFlags) IsAllowed(t ShaderVariableType) bool {
	return f&(1<<t) != 0
}

/**
 * @brief The kind of a shader resource as reported by SPIR-V reflection.
 */
type ShaderResourceKind int

const (
	ShaderResourceKindUniformBuffer ShaderResourceKind = iota
	ShaderResourceKindStorageBuffer
	ShaderResourceKindUniformTexelBuffer
	ShaderResourceKindStorageTexelBuffer
	ShaderResourceKindStorageImage
	/** @brief Combined image sampler. */
	ShaderResourceKindSampledImage
	ShaderResourceKindAtomicCounter
	ShaderResourceKindSeparateImage
	ShaderResourceKindSeparateSampler
	ShaderResourceKindNumKinds
)

var shaderResourceKindNames = [ShaderResourceKindNumKinds]string{
	ShaderResourceKindUniformBuffer:      "uniform_buffer",
	ShaderResourceKindStorageBuffer:      "storage_buffer",
	ShaderResourceKindUniformTexelBuffer: "uniform_texel_buffer",
	ShaderResourceKindStorageTexelBuffer: "storage_texel_buffer",
	ShaderResourceKindStorageImage:       "storage_image",
	ShaderResourceKindSampledImage:       "sampled_image",
	ShaderResourceKindAtomicCounter:      "atomic_counter",
	ShaderResourceKindSeparateImage:      "separate_image",
	ShaderResourceKindSeparateSampler:    "separate_sampler",
}

func (k ShaderResourceKind) String() string {
	if k < 0 || k >= ShaderResourceKindNumKinds {
		return fmt.Sprintf("ShaderResourceKind(%d)", int(k))
	}
	return shaderResourceKindNames[k]
}

func ShaderResourceKindFromString(s string) (ShaderResourceKind, error) {
	for k, name := range shaderResourceKindNames {
		if s == name {
			return ShaderResourceKind(k), nil
		}
	}
	return 0, fmt.Errorf("string %s is not a valid ShaderResourceKind", s)
}

/** @brief Marks a resource that has no static sampler assigned. */
const InvalidStaticSamplerIndex int32 = -1

/**
 * @brief Reflection data for a single shader resource.
 */
type ShaderResourceAttribs struct {
	/** @brief The Name of the resource as declared in the shader. Unique within a layout. */
	Name string
	/** @brief The resource Kind. */
	Kind ShaderResourceKind
	/** @brief Number of array elements; 1 for non-array resources. */
	ArraySize uint32
	/** @brief How often the resource is expected to change. */
	VariableType ShaderVariableType
	/**
	 * @brief Index of the static sampler assigned to this resource, or
	 * InvalidStaticSamplerIndex. Separate samplers with a static sampler are
	 * immutable and never bound at run time.
	 */
	StaticSamplerIndex int32
}

// NewShaderResourceAttribs returns attribs without a static sampler.
func NewShaderResourceAttribs(name string, kind ShaderResourceKind, arraySize uint32, varType ShaderVariableType) ShaderResourceAttribs {
	return ShaderResourceAttribs{
		Name:               name,
		Kind:               kind,
		ArraySize:          arraySize,
		VariableType:       varType,
		StaticSamplerIndex: InvalidStaticSamplerIndex,
	}
}

// WithStaticSampler returns a copy of a that uses static sampler index.
func (a ShaderResourceAttribs) WithStaticSampler(index int32) ShaderResourceAttribs {
	a.StaticSamplerIndex = index
	return a
}

func (a *ShaderResourceAttribs) HasStaticSampler() bool {
	return a.StaticSamplerIndex >= 0
}

// IsImmutableSampler reports whether the resource is a separate sampler baked
// into the pipeline.
func (a *ShaderResourceAttribs) IsImmutableSampler() bool {
	return a.Kind == ShaderResourceKindSeparateSampler && a.HasStaticSampler()
}

// PrintName returns the name of array element arrayIndex, "name[i]" for
// arrays and just the name otherwise.
func (a *ShaderResourceAttribs) PrintName(arrayIndex uint32) string {
	if a.ArraySize > 1 {
		return fmt.Sprintf("%s[%d]", a.Name, arrayIndex)
	}
	return a.Name
}
