package scene

import (
	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/math"
)

// Transform is the local transform of an entity relative to its parent.
type Transform = math.Transform

// Info links an entity into the hierarchy. Invisible entities hide their subtree.
type Info struct {
	Name     string
	Visible  bool
	Parent   Entity
	Children []Entity
}

/**
 * @brief A perspective camera looking down the +Z axis of its transform.
 */
type Camera struct {
	/** @brief Vertical field of view in degrees. */
	Fov  float32
	Near float32
	Far  float32
	/** @brief Clear color and lighting of the world seen through this camera. Nil uses the defaults. */
	Environment *assets.Environment
}

func NewCamera(fov, near, far float32) Camera {
	return Camera{Fov: fov, Near: near, Far: far, Environment: assets.NewEnvironment()}
}

// Projection returns the Y flipped perspective matrix for the given aspect ratio.
func (c Camera) Projection(aspect float32) math.Mat4 {
	return math.NewMat4Perspective(math.DegToRad(c.Fov), aspect, c.Near, c.Far)
}

// View looks from the transform's position along its forward axis.
func (c Camera) View(t Transform) math.Mat4 {
	return math.NewMat4LookTo(t.Position, t.Forward(), math.NewVec3Up())
}

type MeshInstance struct {
	Mesh     assets.Mesh
	Material *assets.Material
}

type PointLight struct {
	Color     math.Vec3
	Intensity float32
}

// DirectionalLight shines along Direction. A zero direction uses the
// entity's forward axis.
type DirectionalLight struct {
	Color     math.Vec3
	Intensity float32
	Direction math.Vec3
}
