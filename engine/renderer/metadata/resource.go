package metadata

import (
	"fmt"
	"strings"
)

/** @brief The type of a device object. */
type DeviceObjectType int

const (
	DeviceObjectTypeBuffer DeviceObjectType = iota
	DeviceObjectTypeBufferView
	DeviceObjectTypeTextureView
	DeviceObjectTypeSampler
)

func (t DeviceObjectType) String() string {
	switch t {
	case DeviceObjectTypeBuffer:
		return "buffer"
	case DeviceObjectTypeBufferView:
		return "buffer view"
	case DeviceObjectTypeTextureView:
		return "texture view"
	case DeviceObjectTypeSampler:
		return "sampler"
	}
	return fmt.Sprintf("DeviceObjectType(%d)", int(t))
}

func DeviceObjectTypeFromString(s string) (DeviceObjectType, error) {
	switch strings.ReplaceAll(s, "_", " ") {
	case "buffer":
		return DeviceObjectTypeBuffer, nil
	case "buffer view":
		return DeviceObjectTypeBufferView, nil
	case "texture view":
		return DeviceObjectTypeTextureView, nil
	case "sampler":
		return DeviceObjectTypeSampler, nil
	}
	return 0, fmt.Errorf("string %s is not a valid DeviceObjectType", s)
}

/**
 * @brief A graphics object that can be bound to a shader variable.
 */
type DeviceObject interface {
	/** @brief The debug name of the object. */
	Name() string
	ObjectType() DeviceObjectType
	/** @brief Process unique identifier of the object. */
	UniqueID() uint32
}

/** @brief Describes how a buffer may be bound to the pipeline. */
type BindFlags uint32

const (
	BindFlagNone            BindFlags = 0
	BindFlagVertexBuffer    BindFlags = 1 << 0
	BindFlagIndexBuffer     BindFlags = 1 << 1
	BindFlagUniformBuffer   BindFlags = 1 << 2
	BindFlagShaderResource  BindFlags = 1 << 3
	BindFlagUnorderedAccess BindFlags = 1 << 4
)

var bindFlagNames = map[string]BindFlags{
	"vertex_buffer":    BindFlagVertexBuffer,
	"index_buffer":     BindFlagIndexBuffer,
	"uniform_buffer":   BindFlagUniformBuffer,
	"shader_resource":  BindFlagShaderResource,
	"unordered_access": BindFlagUnorderedAccess,
}

// ParseBindFlags combines the named bind flags.
func ParseBindFlags(names []string) (BindFlags, error) {
	flags := BindFlagNone
	for _, s := range names {
		f, ok := bindFlagNames[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			return BindFlagNone, fmt.Errorf("string %s is not a valid bind flag", s)
		}
		flags |= f
	}
	return flags, nil
}

/** @brief The type of a buffer or texture view. */
type ViewType int

const (
	ViewTypeUndefined ViewType = iota
	/** @brief Read-only access from shaders. */
	ViewTypeShaderResource
	/** @brief Read-write access from shaders. */
	ViewTypeUnorderedAccess
	ViewTypeRenderTarget
	ViewTypeDepthStencil
)

func (v ViewType) String() string {
	switch v {
	case ViewTypeShaderResource:
		return "shader_resource"
	case ViewTypeUnorderedAccess:
		return "unordered_access"
	case ViewTypeRenderTarget:
		return "render_target"
	case ViewTypeDepthStencil:
		return "depth_stencil"
	}
	return "undefined"
}

func ViewTypeFromString(s string) (ViewType, error) {
	switch s {
	case "shader_resource", "srv":
		return ViewTypeShaderResource, nil
	case "unordered_access", "uav":
		return ViewTypeUnorderedAccess, nil
	case "render_target", "rtv":
		return ViewTypeRenderTarget, nil
	case "depth_stencil", "dsv":
		return ViewTypeDepthStencil, nil
	}
	return ViewTypeUndefined, fmt.Errorf("string %s is not a valid ViewType", s)
}

/**
 * @brief Resolves shader variable names to device objects.
 */
type ResourceMapping interface {
	/**
	 * @brief Returns the object registered for the given name and array
	 * index, or nil if there is none.
	 */
	GetResource(name string, arrayIndex uint32) DeviceObject
}

/** @brief Controls how BindResources resolves shader variables. */
type BindShaderResourcesFlags uint32

const (
	/** @brief Unbind every element before resolving it. */
	BindShaderResourcesResetBindings BindShaderResourcesFlags = 1 << iota
	/** @brief Only resolve elements that are not bound yet. */
	BindShaderResourcesUpdateUnresolved
	/** @brief Report every element left unbound. */
	BindShaderResourcesAllResolved
)

var bindShaderResourcesFlagNames = []struct {
	flag BindShaderResourcesFlags
	name string
}{
	{BindShaderResourcesResetBindings, "reset"},
	{BindShaderResourcesUpdateUnresolved, "update_unresolved"},
	{BindShaderResourcesAllResolved, "all_resolved"},
}

func (f BindShaderResourcesFlags) String() string {
	var names []string
	for _, n := range bindShaderResourcesFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseBindShaderResourcesFlags combines the named flags.
func ParseBindShaderResourcesFlags(names []string) (BindShaderResourcesFlags, error) {
	var flags BindShaderResourcesFlags
next:
	for _, s := range names {
		for _, n := range bindShaderResourcesFlagNames {
			if strings.EqualFold(strings.TrimSpace(s), n.name) {
				flags |= n.flag
				continue next
			}
		}
		return 0, fmt.Errorf("string %s is not a valid bind flag", s)
	}
	return flags, nil
}
