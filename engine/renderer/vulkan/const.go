package vulkan

/**
 * @brief Number of descriptor sets used by a shader resource layout. Static
 * and mutable variables live in the first set, dynamic ones in the second.
 */
const VULKAN_MAX_DESCRIPTOR_SETS uint32 = 2

/** @brief Descriptor set holding static and mutable variables. */
const VULKAN_STATIC_MUTABLE_SET uint32 = 0

/** @brief Descriptor set holding dynamic variables. */
const VULKAN_DYNAMIC_SET uint32 = 1

/**
 * @brief Max number of bindings in a single descriptor set.
 * @todo TODO: query maxPerStageDescriptor* limits from the physical device
 */
const VULKAN_SHADER_MAX_BINDINGS uint32 = 64
