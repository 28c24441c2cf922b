package resources

import "github.com/spaghettifunk/anima-binding/engine/renderer/metadata"

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown file, ignored by the asset manager. */
	ResourceTypeNone ResourceType = iota
	/** @brief Shader resource layout (.shaderlayout). */
	ResourceTypeShaderLayout
	/** @brief Named device objects for a resource mapping (.resmap). */
	ResourceTypeResourceMapping
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShaderLayout:
		return "shader_layout"
	case ResourceTypeResourceMapping:
		return "resource_mapping"
	case ResourceTypeCustom:
		return "custom"
	default:
		return "none"
	}
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The resource type, which selected the loader. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the file the resource was read from, in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/** @brief Data of a ResourceTypeShaderLayout resource. */
type ShaderLayoutResourceData struct {
	/** @brief Name of the shader the layout belongs to. */
	ShaderName string
	/** @brief Reflected resources in declaration order. */
	Resources []metadata.ShaderResourceAttribs
}

/** @brief Data of a ResourceTypeResourceMapping resource. */
type ResourceMappingResourceData struct {
	/** @brief The mapping filled with the declared objects. */
	Mapping *ResourceMapping
	/** @brief Every object created by the loader, for later release. */
	Objects []metadata.DeviceObject
}
