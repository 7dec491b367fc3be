package render

import (
	"encoding/binary"

	"github.com/spaghettifunk/abyss/engine/math"
)

// The structs below are encoded with encoding/binary and must match the
// std140/std430 layouts declared in the shaders, padding included.

// FrameUniforms is bound as the uniform buffer at set 0, binding 0.
type FrameUniforms struct {
	Projection     math.Mat4
	View           math.Mat4
	ProjectionView math.Mat4
	CameraPos      math.Vec3
	LightCount     uint32
	Ambient        math.Vec3
	_              float32
}

type LightType uint32

const (
	LightPoint LightType = iota
	LightDirectional
)

// GpuLight carries a position for point lights and the direction towards the
// light for directional ones.
type GpuLight struct {
	Color math.Vec3
	Type  LightType
	Data  math.Vec3
	_     uint32
}

// GpuMaterial texture indices are texture array slots, 0 meaning none.
type GpuMaterial struct {
	Albedo            math.Vec3
	AlbedoTextureI    uint32
	Roughness         float32
	RoughnessTextureI uint32
	Metallic          float32
	MetallicTextureI  uint32
	Emissive          math.Vec3
	EmissiveTextureI  uint32
	Alpha             float32
	AlphaCutoff       float32
	Opaque            uint32
	_                 uint32
}

// DrawPush is pushed as push constants for every draw.
type DrawPush struct {
	PositionMatrix math.Mat4
	// NormalMatrix is the upper 3x3 of the inverse transpose, one vec4 per row.
	NormalMatrix [12]float32
	MaterialI    uint32
}

// Vertex is the vertex format of every mesh.
type Vertex struct {
	Pos    math.Vec3
	Uv     math.Vec2
	Normal math.Vec3
}

var (
	drawPushSize = uint32(binary.Size(DrawPush{}))
	vertexSize   = uint32(binary.Size(Vertex{}))
)

// NewDrawPush computes the normal matrix of model.
func NewDrawPush(model math.Mat4, material uint32) DrawPush {
	d := DrawPush{PositionMatrix: model, MaterialI: material}
	inv, ok := model.Inverse()
	if !ok {
		inv = math.NewMat4Identity()
	}
	n := inv.Transposed()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			d.NormalMatrix[row*4+col] = n.At(row, col)
		}
	}
	return d
}

func encode(v any) []byte {
	data, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		// Only fixed size types are passed in.
		panic(err)
	}
	return data
}
