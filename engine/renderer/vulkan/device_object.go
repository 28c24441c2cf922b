package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

// deviceObject holds what every bindable object shares.
type deviceObject struct {
	name string
	id   uint32
}

func (o *deviceObject) Name() string {
	return o.name
}

func (o *deviceObject) UniqueID() uint32 {
	return o.id
}

func (o *deviceObject) release() error {
	return core.ReleaseID(o.id)
}

/**
 * @brief A buffer object. The Vulkan handle is owned by the device that
 * created it; the binding layer only reads it.
 */
type BufferVk struct {
	deviceObject
	Handle    vk.Buffer
	Size      uint64
	BindFlags metadata.BindFlags
}

func NewBufferVk(name string, size uint64, bindFlags metadata.BindFlags) *BufferVk {
	b := &BufferVk{
		deviceObject: deviceObject{name: name},
		Size:         size,
		BindFlags:    bindFlags,
	}
	b.id = core.AcquireID(b)
	return b
}

func (b *BufferVk) ObjectType() metadata.DeviceObjectType {
	return metadata.DeviceObjectTypeBuffer
}

func (b *BufferVk) Release() error {
	return b.release()
}

// CreateView creates a view of the whole buffer. The buffer must have been
// created with the bind flag matching the view type.
func (b *BufferVk) CreateView(name string, viewType metadata.ViewType) (*BufferViewVk, error) {
	var required metadata.BindFlags
	switch viewType {
	case metadata.ViewTypeShaderResource:
		required = metadata.BindFlagShaderResource
	case metadata.ViewTypeUnorderedAccess:
		required = metadata.BindFlagUnorderedAccess
	default:
		return nil, fmt.Errorf("buffer '%s': view type %s is not supported for buffers", b.name, viewType)
	}
	if !core.HasFlag(b.BindFlags, required) {
		return nil, fmt.Errorf("buffer '%s': %s view requires the buffer to be created with bind flag %d", b.name, viewType, required)
	}
	v := &BufferViewVk{
		deviceObject: deviceObject{name: name},
		Buffer:       b,
		ViewType:     viewType,
	}
	v.id = core.AcquireID(v)
	return v, nil
}

/** @brief A typed view of a buffer. */
type BufferViewVk struct {
	deviceObject
	Handle   vk.BufferView
	Buffer   *BufferVk
	ViewType metadata.ViewType
}

func (v *BufferViewVk) ObjectType() metadata.DeviceObjectType {
	return metadata.DeviceObjectTypeBufferView
}

func (v *BufferViewVk) Release() error {
	return v.release()
}

/** @brief A view of a texture, optionally paired with a sampler. */
type TextureViewVk struct {
	deviceObject
	Handle   vk.ImageView
	ViewType metadata.ViewType
	/** @brief Used when the view is bound to a combined image sampler. */
	Sampler *SamplerVk
}

func NewTextureViewVk(name string, viewType metadata.ViewType) *TextureViewVk {
	v := &TextureViewVk{
		deviceObject: deviceObject{name: name},
		ViewType:     viewType,
	}
	v.id = core.AcquireID(v)
	return v
}

func (v *TextureViewVk) ObjectType() metadata.DeviceObjectType {
	return metadata.DeviceObjectTypeTextureView
}

func (v *TextureViewVk) SetSampler(s *SamplerVk) {
	v.Sampler = s
}

func (v *TextureViewVk) Release() error {
	return v.release()
}

type SamplerVk struct {
	deviceObject
	Handle vk.Sampler
}

func NewSamplerVk(name string) *SamplerVk {
	s := &SamplerVk{
		deviceObject: deviceObject{name: name},
	}
	s.id = core.AcquireID(s)
	return s
}

func (s *SamplerVk) ObjectType() metadata.DeviceObjectType {
	return metadata.DeviceObjectTypeSampler
}

func (s *SamplerVk) Release() error {
	return s.release()
}
