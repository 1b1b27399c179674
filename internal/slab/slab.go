// Package slab implements the completion-side scratch arena: a slab mapping
// small integer indices to fixed-layout values (statx buffers, in the
// submit/complete backend), backed by a singly-linked free list.
//
// The free-list link lives in a parallel slice of explicit optional
// indices rather than embedded in the value slot's first word, since an
// embedded pointer can't tell an unused entry from the end of an
// exhausted list without an auxiliary sentinel anyway.
package slab

// noNext marks the end of the free list or an unset next pointer. Index 0
// is a valid slot, so this can't be 0 — it has to be a value no real index
// can take.
const noNext = ^uint32(0)

// blockSize is the element count of each backing block. Growing the slab
// appends a new block rather than reallocating an existing one, the same
// stable-pointer discipline internal/store uses for its segments: a
// pointer handed out by Get must stay valid even while an in-flight kernel
// operation still holds it and the slab keeps growing underneath.
const blockSize = 4096

// Slab is a generic append-only arena with free-list recycling. Pointers
// returned by Get remain valid for the slab's entire lifetime.
type Slab[T any] struct {
	blocks [][]T
	next   []uint32 // next[i] == noNext means slot i is in use or is the list's true end
	free   uint32   // head of the free list, or noNext if empty
}

// New returns an empty slab.
func New[T any]() *Slab[T] {
	return &Slab[T]{free: noNext}
}

// Add allocates a slot, returning its index. The slot's value is
// uninitialized (the zero value of T) until the caller writes to it via Get.
func (s *Slab[T]) Add() uint32 {
	if s.free != noNext {
		idx := s.free
		s.free = s.next[idx]
		s.next[idx] = noNext
		return idx
	}
	idx := uint32(len(s.next))
	if idx%blockSize == 0 {
		s.blocks = append(s.blocks, make([]T, blockSize))
	}
	s.next = append(s.next, noNext)
	return idx
}

// Get returns a stable pointer to the value at idx. The returned pointer
// stays valid across any number of further Add calls: it points into a
// block that, once allocated, is never resized or relocated.
func (s *Slab[T]) Get(idx uint32) *T {
	return &s.blocks[idx/blockSize][idx%blockSize]
}

// Del returns idx's slot to the free list.
func (s *Slab[T]) Del(idx uint32) {
	s.next[idx] = s.free
	s.free = idx
}

// Len returns the number of slots ever allocated (including freed ones).
func (s *Slab[T]) Len() int {
	return len(s.next)
}
