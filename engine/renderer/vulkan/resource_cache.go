package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

/** @brief What a resource cache is used for. */
type CacheContentType int

const (
	/** @brief Static resources of a shader program. */
	CacheContentTypeStaticResources CacheContentType = iota
	/** @brief Resources of a shader resource binding. */
	CacheContentTypeSRBResources
)

/**
 * @brief A single cached descriptor: the object bound to one array element
 * of one shader resource.
 */
type CachedResource struct {
	Kind   metadata.ShaderResourceKind
	Object metadata.DeviceObject
}

// DescriptorSetCache holds the resources of one descriptor set and,
// once assigned, the Vulkan descriptor set they are written to.
type DescriptorSetCache struct {
	resources []CachedResource
	handle    vk.DescriptorSet
	allocated bool
}

func (s *DescriptorSetCache) Size() uint32 {
	return uint32(len(s.resources))
}

func (s *DescriptorSetCache) Resource(offset uint32) *CachedResource {
	return &s.resources[offset]
}

// Handle returns the descriptor set and whether one has been assigned.
func (s *DescriptorSetCache) Handle() (vk.DescriptorSet, bool) {
	return s.handle, s.allocated
}

// ShaderResourceCacheVk stores the objects bound to shader resources,
// addressed by descriptor set and offset. It is not safe for concurrent use.
type ShaderResourceCacheVk struct {
	contentType   CacheContentType
	sets          []DescriptorSetCache
	pendingWrites []vk.WriteDescriptorSet
}

func NewShaderResourceCacheVk(contentType CacheContentType) *ShaderResourceCacheVk {
	return &ShaderResourceCacheVk{
		contentType: contentType,
	}
}

func (c *ShaderResourceCacheVk) ContentType() CacheContentType {
	return c.contentType
}

// InitializeSets allocates one set per entry of setSizes, every resource
// unbound.
func (c *ShaderResourceCacheVk) InitializeSets(setSizes []uint32) {
	c.sets = make([]DescriptorSetCache, len(setSizes))
	for i, sz := range setSizes {
		c.sets[i].resources = make([]CachedResource, sz)
	}
	c.pendingWrites = nil
}

// InitializeResources records the kind of arraySize consecutive resources.
func (c *ShaderResourceCacheVk) InitializeResources(set, offset, arraySize uint32, kind metadata.ShaderResourceKind) {
	for i := uint32(0); i < arraySize; i++ {
		c.sets[set].resources[offset+i].Kind = kind
	}
}

func (c *ShaderResourceCacheVk) NumSets() uint32 {
	return uint32(len(c.sets))
}

func (c *ShaderResourceCacheVk) Set(index uint32) *DescriptorSetCache {
	return &c.sets[index]
}

// AssignDescriptorSet attaches a Vulkan descriptor set. From then on binding a
// non-dynamic resource queues a descriptor write.
func (c *ShaderResourceCacheVk) AssignDescriptorSet(index uint32, handle vk.DescriptorSet) {
	c.sets[index].handle = handle
	c.sets[index].allocated = true
}

// NumBoundResources counts the resources that have an object bound.
func (c *ShaderResourceCacheVk) NumBoundResources() int {
	n := 0
	for s := range c.sets {
		for r := range c.sets[s].resources {
			if c.sets[s].resources[r].Object != nil {
				n++
			}
		}
	}
	return n
}

func (c *ShaderResourceCacheVk) queueWrite(w vk.WriteDescriptorSet) {
	c.pendingWrites = append(c.pendingWrites, w)
}

func (c *ShaderResourceCacheVk) PendingWriteCount() int {
	return len(c.pendingWrites)
}

// FlushWrites returns the descriptor writes queued since the last flush,
// ready to be passed to vkUpdateDescriptorSets.
func (c *ShaderResourceCacheVk) FlushWrites() []vk.WriteDescriptorSet {
	w := c.pendingWrites
	c.pendingWrites = nil
	return w
}
