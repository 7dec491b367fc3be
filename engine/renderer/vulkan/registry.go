package vulkan

import (
	"sync"

	"github.com/spaghettifunk/abyss/engine/gpu"
)

// registry maps the engine's opaque handles to native objects.
type registry[T any] struct {
	mu      sync.RWMutex
	objects map[gpu.Handle]T
}

// handles are unique across all registries of a driver.
type handleSource struct {
	mu   sync.Mutex
	next gpu.Handle
}

func (s *handleSource) allocate() gpu.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{objects: make(map[gpu.Handle]T)}
}

func (r *registry[T]) put(h gpu.Handle, obj T) gpu.Handle {
	r.mu.Lock()
	r.objects[h] = obj
	r.mu.Unlock()
	return h
}

// get returns the zero value for NullHandle and unknown handles.
func (r *registry[T]) get(h gpu.Handle) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[h]
	return obj, ok
}

func (r *registry[T]) take(h gpu.Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[h]
	delete(r.objects, h)
	return obj, ok
}

func (r *registry[T]) each(fn func(gpu.Handle, T)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for h, obj := range r.objects {
		fn(h, obj)
	}
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
