package walk

import (
	"strings"
	"sync"
)

// Arena builds child paths for a single traversal. A manual pointer-arena
// with per-worker chunks donated to a shared arena at shutdown would fight
// the garbage collector rather than help it here; a path string's backing
// array simply stays alive as long as something references it. Arena
// instead pools reusable scratch buffers via a sync.Pool of
// *strings.Builder, the way other hot-path string construction in the
// ecosystem avoids a fresh allocation per join.
type Arena struct {
	pool sync.Pool
}

// NewArena returns a fresh per-traversal path arena.
func NewArena() *Arena {
	return &Arena{
		pool: sync.Pool{New: func() any { return new(strings.Builder) }},
	}
}

// Join concatenates a directory path and a child name with exactly one
// separator.
func (a *Arena) Join(dir, name string) string {
	b := a.pool.Get().(*strings.Builder)
	b.Reset()
	b.Grow(len(dir) + 1 + len(name))
	b.WriteString(dir)
	if len(dir) == 0 || dir[len(dir)-1] != '/' {
		b.WriteByte('/')
	}
	b.WriteString(name)
	s := b.String()
	a.pool.Put(b)
	return s
}
