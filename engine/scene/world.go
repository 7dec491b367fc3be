package scene

import (
	"fmt"
	"reflect"

	"github.com/spaghettifunk/abyss/engine/math"
)

// Entity identifies an object in a World. Zero is never a live entity.
type Entity uint32

const NoEntity Entity = 0

type pool[T any] struct {
	entities []Entity
	items    []T
	index    map[Entity]int
}

func newPool[T any]() *pool[T] {
	return &pool[T]{index: make(map[Entity]int)}
}

func (p *pool[T]) set(e Entity, v T) {
	if i, ok := p.index[e]; ok {
		p.items[i] = v
		return
	}
	p.index[e] = len(p.items)
	p.entities = append(p.entities, e)
	p.items = append(p.items, v)
}

func (p *pool[T]) get(e Entity) (*T, bool) {
	i, ok := p.index[e]
	if !ok {
		return nil, false
	}
	return &p.items[i], true
}

// remove keeps insertion order so iteration stays deterministic.
func (p *pool[T]) remove(e Entity) bool {
	i, ok := p.index[e]
	if !ok {
		return false
	}
	delete(p.index, e)
	p.entities = append(p.entities[:i], p.entities[i+1:]...)
	p.items = append(p.items[:i], p.items[i+1:]...)
	for j := i; j < len(p.entities); j++ {
		p.index[p.entities[j]] = j
	}
	return true
}

type anyPool interface {
	remove(e Entity) bool
	len() int
}

func (p *pool[T]) len() int {
	return len(p.items)
}

/**
 * @brief World stores entities and their components. Every entity except the
 * root has an Info component linking it into the hierarchy.
 */
type World struct {
	next   Entity
	alive  map[Entity]struct{}
	pools  map[reflect.Type]anyPool
	root   Entity
	global map[Entity]math.Transform
}

func NewWorld() *World {
	w := &World{
		alive:  make(map[Entity]struct{}),
		pools:  make(map[reflect.Type]anyPool),
		global: make(map[Entity]math.Transform),
	}
	w.root = w.newEntity()
	Add(w, w.root, Info{Name: "root", Visible: true})
	return w
}

func (w *World) newEntity() Entity {
	w.next++
	e := w.next
	w.alive[e] = struct{}{}
	return e
}

// Root is the implicit parent of every top level entity.
func (w *World) Root() Entity {
	return w.root
}

func (w *World) Alive(e Entity) bool {
	_, ok := w.alive[e]
	return ok
}

// Len counts live entities, the root included.
func (w *World) Len() int {
	return len(w.alive)
}

// Spawn creates a visible entity with an identity Transform under parent.
// NoEntity means the root.
func (w *World) Spawn(name string, parent Entity) Entity {
	if parent == NoEntity || !w.Alive(parent) {
		parent = w.root
	}
	e := w.newEntity()
	Add(w, e, Info{Name: name, Visible: true, Parent: parent})
	Add(w, e, math.NewTransform())
	if info, ok := Get[Info](w, parent); ok {
		info.Children = append(info.Children, e)
	}
	return e
}

// SetParent moves e under parent. Cycles are rejected.
func (w *World) SetParent(e, parent Entity) error {
	if e == w.root {
		return fmt.Errorf("the root entity has no parent")
	}
	if parent == NoEntity {
		parent = w.root
	}
	if !w.Alive(e) || !w.Alive(parent) {
		return fmt.Errorf("set parent of %d to %d: entity not alive", e, parent)
	}
	for p := parent; p != NoEntity; p = w.Parent(p) {
		if p == e {
			return fmt.Errorf("set parent of %d to %d: would create a cycle", e, parent)
		}
	}
	info, ok := Get[Info](w, e)
	if !ok {
		return fmt.Errorf("entity %d has no Info", e)
	}
	w.unlink(e, info.Parent)
	info.Parent = parent
	if pinfo, ok := Get[Info](w, parent); ok {
		pinfo.Children = append(pinfo.Children, e)
	}
	return nil
}

func (w *World) unlink(e, parent Entity) {
	pinfo, ok := Get[Info](w, parent)
	if !ok {
		return
	}
	for i, c := range pinfo.Children {
		if c == e {
			pinfo.Children = append(pinfo.Children[:i], pinfo.Children[i+1:]...)
			return
		}
	}
}

func (w *World) Parent(e Entity) Entity {
	if info, ok := Get[Info](w, e); ok {
		return info.Parent
	}
	return NoEntity
}

func (w *World) Children(e Entity) []Entity {
	if info, ok := Get[Info](w, e); ok {
		return info.Children
	}
	return nil
}

// Despawn removes e, its descendants and all their components.
func (w *World) Despawn(e Entity) {
	if e == w.root || !w.Alive(e) {
		return
	}
	children := append([]Entity(nil), w.Children(e)...)
	for _, c := range children {
		w.Despawn(c)
	}
	w.unlink(e, w.Parent(e))
	for _, p := range w.pools {
		p.remove(e)
	}
	delete(w.global, e)
	delete(w.alive, e)
}

// IsVisible reports whether e and all of its ancestors are visible.
func (w *World) IsVisible(e Entity) bool {
	for ; e != NoEntity; e = w.Parent(e) {
		if info, ok := Get[Info](w, e); ok && !info.Visible {
			return false
		}
	}
	return true
}

func poolOf[T any](w *World, create bool) *pool[T] {
	key := reflect.TypeFor[T]()
	if p, ok := w.pools[key]; ok {
		return p.(*pool[T])
	}
	if !create {
		return nil
	}
	p := newPool[T]()
	w.pools[key] = p
	return p
}

// Add sets the T component of e, replacing an existing one.
func Add[T any](w *World, e Entity, component T) {
	if !w.Alive(e) {
		return
	}
	poolOf[T](w, true).set(e, component)
}

// Get returns a pointer into the component storage. It stays valid until the
// next Add or Remove of the same component type.
func Get[T any](w *World, e Entity) (*T, bool) {
	p := poolOf[T](w, false)
	if p == nil {
		return nil, false
	}
	return p.get(e)
}

func Has[T any](w *World, e Entity) bool {
	_, ok := Get[T](w, e)
	return ok
}

func Remove[T any](w *World, e Entity) bool {
	p := poolOf[T](w, false)
	if p == nil {
		return false
	}
	return p.remove(e)
}

// Count returns how many entities carry a T.
func Count[T any](w *World) int {
	p := poolOf[T](w, false)
	if p == nil {
		return 0
	}
	return p.len()
}

// Each calls fn for every entity with a T, in insertion order. fn must not add
// or remove T components.
func Each[T any](w *World, fn func(e Entity, c *T)) {
	p := poolOf[T](w, false)
	if p == nil {
		return
	}
	for i, e := range p.entities {
		fn(e, &p.items[i])
	}
}

// Each2 calls fn for every entity carrying both an A and a B.
func Each2[A, B any](w *World, fn func(e Entity, a *A, b *B)) {
	pa := poolOf[A](w, false)
	pb := poolOf[B](w, false)
	if pa == nil || pb == nil {
		return
	}
	for i, e := range pa.entities {
		if b, ok := pb.get(e); ok {
			fn(e, &pa.items[i], b)
		}
	}
}

// First2 returns the first entity carrying both an A and a B.
func First2[A, B any](w *World) (Entity, *A, *B, bool) {
	pa := poolOf[A](w, false)
	pb := poolOf[B](w, false)
	if pa == nil || pb == nil {
		return NoEntity, nil, nil, false
	}
	for i, e := range pa.entities {
		if b, ok := pb.get(e); ok {
			return e, &pa.items[i], b, true
		}
	}
	return NoEntity, nil, nil, false
}
