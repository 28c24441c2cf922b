package containers

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/anima-binding/engine/memory"
)

var ErrArrayFull = errors.New("array is full")

// FixedArray is an array with a capacity fixed at creation, whose storage is
// accounted to the allocator that created it. Elements are constructed in
// place with Emplace and destructed all at once by Release.
type FixedArray[T any] struct {
	block *memory.Block
	data  []T
}

// NewFixedArray requests a single block large enough for capacity elements.
// A zero capacity still results in one (empty) allocation.
func NewFixedArray[T any](allocator memory.Allocator, description string, capacity int) (*FixedArray[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("invalid capacity %d for %q", capacity, description)
	}
	var zero T
	size := uint64(capacity) * uint64(unsafe.Sizeof(zero))
	block, err := allocator.Allocate(description, size)
	if err != nil {
		return nil, err
	}
	return &FixedArray[T]{
		block: block,
		data:  make([]T, 0, capacity),
	}, nil
}

// Emplace stores value in the next free slot and returns a pointer to it.
// Pointers stay valid until Release since the array never grows.
func (fa *FixedArray[T]) Emplace(value T) (*T, error) {
	if fa.IsFull() {
		return nil, ErrArrayFull
	}
	fa.data = append(fa.data, value)
	return &fa.data[len(fa.data)-1], nil
}

// At returns the element in slot i. It panics when i is out of range.
func (fa *FixedArray[T]) At(i int) *T {
	return &fa.data[i]
}

func (fa *FixedArray[T]) Len() int {
	return len(fa.data)
}

func (fa *FixedArray[T]) Cap() int {
	return cap(fa.data)
}

func (fa *FixedArray[T]) IsFull() bool {
	return len(fa.data) == cap(fa.data)
}

func (fa *FixedArray[T]) Block() *memory.Block {
	return fa.block
}

// Release returns the block to allocator, then destructs every element in
// slot order with dispose (which may be nil). The array is empty afterwards.
// When the allocator refuses the block the array is left untouched, so the
// release can be retried with the right allocator.
func (fa *FixedArray[T]) Release(allocator memory.Allocator, dispose func(*T)) error {
	if err := allocator.Free(fa.block); err != nil {
		return err
	}
	fa.block = nil

	var zero T
	for i := range fa.data {
		if dispose != nil {
			dispose(&fa.data[i])
		}
		fa.data[i] = zero
	}
	fa.data = fa.data[:0:0]
	return nil
}
