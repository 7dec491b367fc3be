package scene

import "github.com/spaghettifunk/abyss/engine/math"

// UpdateWorldTransforms recomputes the global transform of every entity,
// parents before children, starting at the root. Entities without a Transform
// inherit their parent's.
func UpdateWorldTransforms(w *World) {
	clear(w.global)
	for _, child := range w.Children(w.root) {
		w.updateEntity(math.NewTransform(), child)
	}
}

func (w *World) updateEntity(parent math.Transform, e Entity) {
	global := parent
	if local, ok := Get[Transform](w, e); ok {
		global = local.Apply(parent)
	}
	w.global[e] = global
	for _, child := range w.Children(e) {
		w.updateEntity(global, child)
	}
}

// GlobalTransform returns the transform computed by the last UpdateWorldTransforms.
func (w *World) GlobalTransform(e Entity) (math.Transform, bool) {
	t, ok := w.global[e]
	return t, ok
}

// WorldPosition falls back to the local position for entities not yet visited.
func (w *World) WorldPosition(e Entity) math.Vec3 {
	if t, ok := w.global[e]; ok {
		return t.Position
	}
	if t, ok := Get[Transform](w, e); ok {
		return t.Position
	}
	return math.NewVec3Zero()
}
