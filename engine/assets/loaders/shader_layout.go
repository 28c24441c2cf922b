package loaders

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-binding/engine/resources"
)

/**
 * @brief On-disk form of a .shaderlayout file.
 *
 * shader = "Forward"
 *
 * [[resource]]
 * name = "g_Textures"
 * kind = "separate_image"
 * type = "dynamic"
 * array_size = 4
 */
type shaderLayoutFile struct {
	Shader    string                `toml:"shader"`
	Resources []shaderResourceEntry `toml:"resource"`
}

type shaderResourceEntry struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
	Type string `toml:"type"`
	/** @brief Defaults to 1. */
	ArraySize *uint32 `toml:"array_size"`
	/** @brief Index of the immutable sampler assigned to the resource. */
	StaticSampler *int32 `toml:"static_sampler"`
}

// ShaderLayoutLoader reads the reflected resources of a shader from a
// .shaderlayout file.
type ShaderLayoutLoader struct{}

func (sl *ShaderLayoutLoader) Load(path string) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layout, err := ParseShaderLayout(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if layout.ShaderName == "" {
		layout.ShaderName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeShaderLayout,
		Name:     layout.ShaderName,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     layout,
	}, nil
}

func (sl *ShaderLayoutLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}

// ParseShaderLayout decodes a .shaderlayout document.
func ParseShaderLayout(data []byte) (*resources.ShaderLayoutResourceData, error) {
	var f shaderLayoutFile
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&f); err != nil {
		return nil, err
	}

	out := &resources.ShaderLayoutResourceData{
		ShaderName: f.Shader,
		Resources:  make([]metadata.ShaderResourceAttribs, 0, len(f.Resources)),
	}
	for i, e := range f.Resources {
		kind, err := metadata.ShaderResourceKindFromString(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, err)
		}
		varType, err := metadata.ShaderVariableTypeFromString(e.Type)
		if err != nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, e.Name, err)
		}
		arraySize := uint32(1)
		if e.ArraySize != nil {
			arraySize = *e.ArraySize
		}
		attribs := metadata.NewShaderResourceAttribs(e.Name, kind, arraySize, varType)
		if e.StaticSampler != nil {
			if *e.StaticSampler < 0 {
				return nil, fmt.Errorf("resource %d (%s): invalid static sampler index %d", i, e.Name, *e.StaticSampler)
			}
			attribs = attribs.WithStaticSampler(*e.StaticSampler)
		}
		out.Resources = append(out.Resources, attribs)
	}
	return out, nil
}
