package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUnknownBlock = errors.New("block was not allocated by this allocator")
)

/**
 * @brief A single allocation handed out by an Allocator. The block only
 * accounts for the memory; the owner decides what lives in it.
 */
type Block struct {
	/** @brief Unique identifier of the allocation. */
	ID uuid.UUID
	/** @brief Human readable purpose of the allocation. */
	Description string
	/** @brief Size of the allocation in bytes. */
	Size uint64
}

func (b *Block) String() string {
	return fmt.Sprintf("%s (%d bytes, %s)", b.Description, b.Size, b.ID)
}

// Allocator provides blocks for objects with an explicit lifetime. The same
// allocator must be used to free a block as was used to allocate it.
type Allocator interface {
	Allocate(description string, size uint64) (*Block, error)
	Free(block *Block) error
}

// Stats is a snapshot of the counters kept by HeapAllocator.
type Stats struct {
	Allocations uint64
	Frees       uint64
	LiveBlocks  int
	LiveBytes   uint64
	PeakBytes   uint64
}

// HeapAllocator is an Allocator backed by the Go heap that keeps track of
// every live block. It is safe for concurrent use.
type HeapAllocator struct {
	mu     sync.Mutex
	blocks map[uuid.UUID]*Block
	stats  Stats
}

func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{
		blocks: make(map[uuid.UUID]*Block),
	}
}

func (a *HeapAllocator) Allocate(description string, size uint64) (*Block, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %q: %w", description, err)
	}
	b := &Block{
		ID:          id,
		Description: description,
		Size:        size,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks[id] = b
	a.stats.Allocations++
	a.stats.LiveBlocks++
	a.stats.LiveBytes += size
	if a.stats.LiveBytes > a.stats.PeakBytes {
		a.stats.PeakBytes = a.stats.LiveBytes
	}
	return b, nil
}

func (a *HeapAllocator) Free(block *Block) error {
	if block == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if owned, ok := a.blocks[block.ID]; !ok || owned != block {
		return fmt.Errorf("free %s: %w", block, ErrUnknownBlock)
	}
	delete(a.blocks, block.ID)
	a.stats.Frees++
	a.stats.LiveBlocks--
	a.stats.LiveBytes -= block.Size
	return nil
}

// Owns reports whether block is live in this allocator.
func (a *HeapAllocator) Owns(block *Block) bool {
	if block == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	owned, ok := a.blocks[block.ID]
	return ok && owned == block
}

func (a *HeapAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
