// Package codegenapi holds small, dependency-free helpers shared across
// the internal/codegen components: a generic bump allocator for
// per-function lowering scratch state, compile-time debug switches, and
// the fatal diagnostic type used by lowering-invariant violations.
package codegenapi

const poolPageSize = 128

// Pool is a page-based bump allocator for T, reused across function
// compiles via Reset instead of being freed and re-allocated. This
// mirrors wazero's wazevoapi.Pool: per-block lowering records are
// allocated from a Pool during a function's lowering and released in
// bulk when the next function's lowering resets it, instead of being put
// on the heap one at a time.
type Pool[T any] struct {
	pages            []*[poolPageSize]T
	allocated, index int
}

// NewPool returns a ready-to-use Pool.
func NewPool[T any]() Pool[T] {
	var p Pool[T]
	p.Reset()
	return p
}

// Allocated returns the number of T(s) handed out since the last Reset.
func (p *Pool[T]) Allocated() int { return p.allocated }

// Allocate returns a pointer to a fresh, zero-valued T.
func (p *Pool[T]) Allocate() *T {
	if p.index == poolPageSize {
		if len(p.pages) == cap(p.pages) {
			p.pages = append(p.pages, new([poolPageSize]T))
		} else {
			i := len(p.pages)
			p.pages = p.pages[:i+1]
			if p.pages[i] == nil {
				p.pages[i] = new([poolPageSize]T)
			}
		}
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	p.index++
	p.allocated++
	return ret
}

// View returns the pointer to the i-th item allocated since the pool was
// constructed or last Reset.
func (p *Pool[T]) View(i int) *T {
	page, index := i/poolPageSize, i%poolPageSize
	return &p.pages[page][index]
}

// Reset zeroes and reclaims every page, readying the pool for the next
// function's lowering.
func (p *Pool[T]) Reset() {
	for _, page := range p.pages {
		var zero T
		for i := range page {
			page[i] = zero
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}
