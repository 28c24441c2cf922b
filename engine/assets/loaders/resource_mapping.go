package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-binding/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-binding/engine/resources"
)

/**
 * @brief On-disk form of a .resmap file. Every entry creates one device
 * object and registers it under a shader variable name.
 *
 * [[resource]]
 * name = "g_Textures"
 * array_index = 1
 * object = "texture_view"
 * label = "Albedo"
 * view = "srv"
 * sampler = "LinearWrap"
 */
type resourceMappingFile struct {
	Name      string                `toml:"name"`
	Resources []resourceObjectEntry `toml:"resource"`
}

type resourceObjectEntry struct {
	Name       string `toml:"name"`
	ArrayIndex uint32 `toml:"array_index"`
	Object     string `toml:"object"`
	/** @brief Debug name of the object. Defaults to the variable name. */
	Label string `toml:"label"`
	/** @brief Size in bytes of buffers and of the buffer behind buffer views. */
	Size      uint64   `toml:"size"`
	BindFlags []string `toml:"bind_flags"`
	View      string   `toml:"view"`
	/** @brief Name of a sampler created for a texture view. */
	Sampler string `toml:"sampler"`
}

// ResourceMappingLoader creates the device objects declared in a .resmap file
// and registers them in a new resource mapping.
type ResourceMappingLoader struct{}

func (rl *ResourceMappingLoader) Load(path string) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name, mapping, err := ParseResourceMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeResourceMapping,
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     mapping,
	}, nil
}

// Unload releases the identifiers of every object created by Load.
func (rl *ResourceMappingLoader) Unload(res *resources.Resource) error {
	data, ok := res.Data.(*resources.ResourceMappingResourceData)
	if !ok {
		return fmt.Errorf("resource '%s' is not a resource mapping", res.Name)
	}
	err := releaseObjects(data.Objects)
	res.Data = nil
	return err
}

type releaser interface {
	Release() error
}

func releaseObjects(objs []metadata.DeviceObject) error {
	var errs []error
	for _, obj := range objs {
		if r, ok := obj.(releaser); ok {
			if err := r.Release(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ParseResourceMapping decodes a .resmap document.
func ParseResourceMapping(data []byte) (string, *resources.ResourceMappingResourceData, error) {
	var f resourceMappingFile
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&f); err != nil {
		return "", nil, err
	}

	out := &resources.ResourceMappingResourceData{
		Mapping: resources.NewResourceMapping(),
	}
	for i, e := range f.Resources {
		objs, err := createObject(e)
		if err == nil {
			out.Objects = append(out.Objects, objs...)
			err = out.Mapping.AddResourceArray(e.Name, e.ArrayIndex, objs[:1], true)
		}
		if err != nil {
			_ = releaseObjects(out.Objects)
			return "", nil, fmt.Errorf("resource %d (%s[%d]): %w", i, e.Name, e.ArrayIndex, err)
		}
	}
	core.LogDebug("Resource mapping '%s': %d objects for %d variables.", f.Name, len(out.Objects), len(out.Mapping.Names()))
	return f.Name, out, nil
}

// createObject returns the object to register first, followed by any object
// created to back it.
func createObject(e resourceObjectEntry) ([]metadata.DeviceObject, error) {
	objectType, err := metadata.DeviceObjectTypeFromString(e.Object)
	if err != nil {
		return nil, err
	}
	label := e.Label
	if label == "" {
		label = e.Name
	}
	bindFlags, err := metadata.ParseBindFlags(e.BindFlags)
	if err != nil {
		return nil, err
	}

	switch objectType {
	case metadata.DeviceObjectTypeBuffer:
		if bindFlags == metadata.BindFlagNone {
			bindFlags = metadata.BindFlagUniformBuffer
		}
		return []metadata.DeviceObject{vulkan.NewBufferVk(label, e.Size, bindFlags)}, nil

	case metadata.DeviceObjectTypeBufferView:
		viewType, err := viewTypeOrDefault(e.View)
		if err != nil {
			return nil, err
		}
		if bindFlags == metadata.BindFlagNone {
			bindFlags = metadata.BindFlagShaderResource | metadata.BindFlagUnorderedAccess
		}
		buf := vulkan.NewBufferVk(label+" buffer", e.Size, bindFlags)
		view, err := buf.CreateView(label, viewType)
		if err != nil {
			_ = buf.Release()
			return nil, err
		}
		return []metadata.DeviceObject{view, buf}, nil

	case metadata.DeviceObjectTypeTextureView:
		viewType, err := viewTypeOrDefault(e.View)
		if err != nil {
			return nil, err
		}
		view := vulkan.NewTextureViewVk(label, viewType)
		if e.Sampler == "" {
			return []metadata.DeviceObject{view}, nil
		}
		sampler := vulkan.NewSamplerVk(e.Sampler)
		view.SetSampler(sampler)
		return []metadata.DeviceObject{view, sampler}, nil

	case metadata.DeviceObjectTypeSampler:
		return []metadata.DeviceObject{vulkan.NewSamplerVk(label)}, nil
	}
	return nil, fmt.Errorf("unsupported object type %s", objectType)
}

func viewTypeOrDefault(s string) (metadata.ViewType, error) {
	if s == "" {
		return metadata.ViewTypeShaderResource, nil
	}
	return metadata.ViewTypeFromString(s)
}
