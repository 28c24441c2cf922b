package core

import (
	"fmt"
	"sync"
)

const initialIdentifierCount = 100

// IdentifierPool hands out small integer ids, reusing released slots first.
type IdentifierPool struct {
	mu     sync.Mutex
	owners []interface{}
}

var objectIDs IdentifierPool

// AcquireID registers owner with the process wide pool and returns its id.
func AcquireID(owner interface{}) uint32 {
	return objectIDs.Acquire(owner)
}

// ReleaseID makes id available again.
func ReleaseID(id uint32) error {
	return objectIDs.Release(id)
}

func (p *IdentifierPool) Acquire(owner interface{}) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.owners) == 0 {
		p.owners = make([]interface{}, initialIdentifierCount)
	}
	for i, o := range p.owners {
		// Existing free spot. Take it.
		if o == nil {
			p.owners[i] = owner
			return uint32(i)
		}
	}

	// No free slot, push a new one.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IdentifierPool) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.owners) == 0 {
		return fmt.Errorf("release of id %d before any id was acquired: %w", id, ErrUnknownID)
	}
	if id >= uint32(len(p.owners)) {
		return fmt.Errorf("id %d out of range (max=%d): %w", id, len(p.owners)-1, ErrUnknownID)
	}
	if p.owners[id] == nil {
		return fmt.Errorf("id %d is not in use: %w", id, ErrUnknownID)
	}
	p.owners[id] = nil
	return nil
}

// Owner returns the object registered under id, or nil.
func (p *IdentifierPool) Owner(id uint32) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id >= uint32(len(p.owners)) {
		return nil
	}
	return p.owners[id]
}
