package resources

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/renderer/metadata"
)

var ErrEmptyResourceName = errors.New("resource name is empty")

type mappingKey struct {
	name       string
	arrayIndex uint32
}

// ResourceMapping is a registry of device objects keyed by shader variable
// name and array index. It is safe for concurrent use.
type ResourceMapping struct {
	mu      sync.RWMutex
	objects map[mappingKey]metadata.DeviceObject
}

func NewResourceMapping() *ResourceMapping {
	return &ResourceMapping{
		objects: make(map[mappingKey]metadata.DeviceObject),
	}
}

// AddResource registers obj under name at array index 0. When isUnique is set
// an existing entry with a different object is an error.
func (rm *ResourceMapping) AddResource(name string, obj metadata.DeviceObject, isUnique bool) error {
	return rm.AddResourceArray(name, 0, []metadata.DeviceObject{obj}, isUnique)
}

// AddResourceArray registers objs under name starting at startIndex. Nil
// entries are skipped.
func (rm *ResourceMapping) AddResourceArray(name string, startIndex uint32, objs []metadata.DeviceObject, isUnique bool) error {
	if name == "" {
		return ErrEmptyResourceName
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for i, obj := range objs {
		if obj == nil {
			continue
		}
		key := mappingKey{name: name, arrayIndex: startIndex + uint32(i)}
		if existing, ok := rm.objects[key]; ok && existing != obj {
			if isUnique {
				err := fmt.Errorf("resource with name '%s' at index %d already exists and is bound to '%s'", name, key.arrayIndex, existing.Name())
				core.LogError("Failed to add resource to the mapping: %s", err)
				return err
			}
			core.LogDebug("Resource '%s'[%d] replaced in the mapping ('%s' -> '%s').", name, key.arrayIndex, existing.Name(), obj.Name())
		}
		rm.objects[key] = obj
	}
	return nil
}

// RemoveResourceByName removes the element at arrayIndex, or every element of
// name when allElements is set.
func (rm *ResourceMapping) RemoveResourceByName(name string, arrayIndex uint32, allElements bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !allElements {
		delete(rm.objects, mappingKey{name: name, arrayIndex: arrayIndex})
		return
	}
	for key := range rm.objects {
		if key.name == name {
			delete(rm.objects, key)
		}
	}
}

// GetResource returns the object registered for name and arrayIndex, or nil.
func (rm *ResourceMapping) GetResource(name string, arrayIndex uint32) metadata.DeviceObject {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if obj, ok := rm.objects[mappingKey{name: name, arrayIndex: arrayIndex}]; ok {
		return obj
	}
	return nil
}

// Size returns the number of registered elements.
func (rm *ResourceMapping) Size() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.objects)
}

// Names returns every registered name in sorted order.
func (rm *ResourceMapping) Names() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range rm.objects {
		seen[key.name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// MappingChain resolves names through several mappings, the first one that
// knows the element wins.
type MappingChain []metadata.ResourceMapping

func (c MappingChain) GetResource(name string, arrayIndex uint32) metadata.DeviceObject {
	for _, m := range c {
		if m == nil {
			continue
		}
		if obj := m.GetResource(name, arrayIndex); obj != nil {
			return obj
		}
	}
	return nil
}
