package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/math"
)

func TestSpawnLinksHierarchy(t *testing.T) {
	w := NewWorld()
	a := w.Spawn("a", NoEntity)
	b := w.Spawn("b", a)

	assert.Equal(t, w.Root(), w.Parent(a))
	assert.Equal(t, a, w.Parent(b))
	assert.Equal(t, []Entity{a}, w.Children(w.Root()))
	assert.Equal(t, []Entity{b}, w.Children(a))
	assert.True(t, Has[Transform](w, b))
	assert.Equal(t, 3, w.Len())
}

func TestComponents(t *testing.T) {
	w := NewWorld()
	e := w.Spawn("light", NoEntity)

	Add(w, e, PointLight{Color: math.NewVec3One(), Intensity: 2})
	l, ok := Get[PointLight](w, e)
	require.True(t, ok)
	l.Intensity = 4

	l, _ = Get[PointLight](w, e)
	assert.Equal(t, float32(4), l.Intensity)
	assert.Equal(t, 1, Count[PointLight](w))

	assert.True(t, Remove[PointLight](w, e))
	assert.False(t, Has[PointLight](w, e))
	assert.False(t, Remove[PointLight](w, e))
	assert.False(t, Has[Camera](w, e))
}

func TestEach2AndFirst2(t *testing.T) {
	w := NewWorld()
	a := w.Spawn("a", NoEntity)
	b := w.Spawn("b", NoEntity)
	c := w.Spawn("c", NoEntity)
	Add(w, b, NewCamera(60, 0.1, 100))
	Add(w, c, NewCamera(90, 0.1, 100))

	var seen []Entity
	Each2(w, func(e Entity, _ *Transform, _ *Camera) {
		seen = append(seen, e)
	})
	assert.Equal(t, []Entity{b, c}, seen)

	e, _, cam, ok := First2[Transform, Camera](w)
	require.True(t, ok)
	assert.Equal(t, b, e)
	assert.Equal(t, float32(60), cam.Fov)

	_, _, _, ok = First2[Transform, DirectionalLight](w)
	assert.False(t, ok)

	var count int
	Each(w, func(e Entity, _ *Info) { count++ })
	assert.Equal(t, 4, count)
	assert.NotEqual(t, a, NoEntity)
}

func TestSetParentRejectsCycles(t *testing.T) {
	w := NewWorld()
	a := w.Spawn("a", NoEntity)
	b := w.Spawn("b", a)
	c := w.Spawn("c", NoEntity)

	assert.Error(t, w.SetParent(a, b))
	assert.Error(t, w.SetParent(w.Root(), a))

	require.NoError(t, w.SetParent(b, c))
	assert.Empty(t, w.Children(a))
	assert.Equal(t, []Entity{b}, w.Children(c))
}

func TestDespawnRemovesSubtree(t *testing.T) {
	w := NewWorld()
	a := w.Spawn("a", NoEntity)
	b := w.Spawn("b", a)
	Add(w, b, PointLight{Intensity: 1})

	w.Despawn(a)
	assert.False(t, w.Alive(a))
	assert.False(t, w.Alive(b))
	assert.Equal(t, 0, Count[PointLight](w))
	assert.Empty(t, w.Children(w.Root()))
}

func TestVisibilityIsInherited(t *testing.T) {
	w := NewWorld()
	a := w.Spawn("a", NoEntity)
	b := w.Spawn("b", a)
	assert.True(t, w.IsVisible(b))

	info, _ := Get[Info](w, a)
	info.Visible = false
	assert.False(t, w.IsVisible(b))
}

func TestUpdateWorldTransforms(t *testing.T) {
	w := NewWorld()
	parent := w.Spawn("parent", NoEntity)
	child := w.Spawn("child", parent)

	pt, _ := Get[Transform](w, parent)
	pt.Position = math.NewVec3(10, 0, 0)
	pt.Scale = math.NewVec3(2, 2, 2)
	ct, _ := Get[Transform](w, child)
	ct.Position = math.NewVec3(1, 2, 3)

	UpdateWorldTransforms(w)

	g, ok := w.GlobalTransform(parent)
	require.True(t, ok)
	assert.True(t, g.Position.Compare(math.NewVec3(10, 0, 0), 1e-4))

	g, ok = w.GlobalTransform(child)
	require.True(t, ok)
	assert.True(t, g.Position.Compare(math.NewVec3(12, 4, 6), 1e-4), "got %v", g.Position)
	assert.True(t, g.Scale.Compare(math.NewVec3(2, 2, 2), 1e-4))

	_, ok = w.GlobalTransform(w.Root())
	assert.False(t, ok)
}

func TestUpdateWorldTransformsRotatesChildren(t *testing.T) {
	w := NewWorld()
	parent := w.Spawn("parent", NoEntity)
	child := w.Spawn("child", parent)

	pt, _ := Get[Transform](w, parent)
	pt.Rotation = math.NewQuatFromAxisAngle(math.NewVec3Up(), math.DegToRad(90))
	ct, _ := Get[Transform](w, child)
	ct.Position = math.NewVec3(0, 0, 1)

	UpdateWorldTransforms(w)

	want := pt.Rotation.Rotate(ct.Position)
	assert.True(t, w.WorldPosition(child).Compare(want, 1e-4), "got %v want %v", w.WorldPosition(child), want)
}
