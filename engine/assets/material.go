package assets

import "github.com/spaghettifunk/abyss/engine/math"

/**
 * @brief Material describes the surface of a mesh. Scalar factors multiply
 * the matching texture when one is set.
 */
type Material struct {
	id   ID
	Name string

	/** @brief Base color, alpha in W. */
	Albedo    math.Vec4
	AlbedoMap Texture

	Roughness    float32
	RoughnessMap Texture

	Metallic    float32
	MetallicMap Texture

	Emissive    math.Vec3
	EmissiveMap Texture

	/** @brief Fragments with alpha below the cutoff are discarded. */
	AlphaCutoff float32
	/** @brief Translucent materials are drawn after opaque ones, back to front. */
	Opaque bool
}

func NewMaterial(name string) *Material {
	return &Material{
		id:          NewID(),
		Name:        name,
		Albedo:      math.NewVec4(1, 1, 1, 1),
		Roughness:   1,
		AlphaCutoff: 0.5,
		Opaque:      true,
	}
}

func (m *Material) ID() ID {
	return m.id
}

// Textures lists the texture slots in the order the GPU record encodes them.
func (m *Material) Textures() [4]Texture {
	return [4]Texture{m.AlbedoMap, m.RoughnessMap, m.MetallicMap, m.EmissiveMap}
}

// Environment is what a camera sees around the scene.
type Environment struct {
	ClearColor      math.Vec3
	AmbientStrength float32
	SunColor        math.Vec3
	SunDirection    math.Vec3
}

func NewEnvironment() *Environment {
	return &Environment{
		ClearColor:      math.NewVec3One(),
		AmbientStrength: 0.25,
		SunColor:        math.NewVec3One(),
		SunDirection:    math.NewVec3Up(),
	}
}
