package assets

import (
	"iter"
	"slices"

	"github.com/google/uuid"

	"github.com/spaghettifunk/abyss/engine/math"
)

// ID identifies an asset. GPU caches key their entries by it.
type ID = uuid.UUID

func NewID() ID {
	return uuid.New()
}

/**
 * @brief Mesh is the CPU side description of geometry. Normals are optional;
 * when absent the renderer computes them.
 */
type Mesh interface {
	ID() ID
	VertexCount() uint32
	// IndexCount returns false for non-indexed meshes.
	IndexCount() (uint32, bool)
	WriteIndices(dst []uint32)
	Positions() iter.Seq[math.Vec3]
	UVs() iter.Seq[math.Vec2]
	Normals() (iter.Seq[math.Vec3], bool)
}

// MeshData is a Mesh held in plain slices.
type MeshData struct {
	id        ID
	Name      string
	Vertices  []math.Vec3
	TexCoords []math.Vec2
	// Nil when the mesh carries no normals.
	VertexNormals []math.Vec3
	// Nil for non-indexed meshes.
	Indices []uint32
}

func NewMeshData(name string, positions []math.Vec3, uvs []math.Vec2, normals []math.Vec3, indices []uint32) *MeshData {
	if len(uvs) < len(positions) {
		uvs = append(uvs, make([]math.Vec2, len(positions)-len(uvs))...)
	}
	return &MeshData{
		id:            NewID(),
		Name:          name,
		Vertices:      positions,
		TexCoords:     uvs,
		VertexNormals: normals,
		Indices:       indices,
	}
}

func (m *MeshData) ID() ID {
	return m.id
}

func (m *MeshData) VertexCount() uint32 {
	return uint32(len(m.Vertices))
}

func (m *MeshData) IndexCount() (uint32, bool) {
	if m.Indices == nil {
		return 0, false
	}
	return uint32(len(m.Indices)), true
}

func (m *MeshData) WriteIndices(dst []uint32) {
	copy(dst, m.Indices)
}

func (m *MeshData) Positions() iter.Seq[math.Vec3] {
	return slices.Values(m.Vertices)
}

func (m *MeshData) UVs() iter.Seq[math.Vec2] {
	return slices.Values(m.TexCoords)
}

func (m *MeshData) Normals() (iter.Seq[math.Vec3], bool) {
	if m.VertexNormals == nil {
		return nil, false
	}
	return slices.Values(m.VertexNormals), true
}

// NewQuad builds a width x height quad in the XY plane facing +Z.
func NewQuad(width, height float32) *MeshData {
	w, h := width*0.5, height*0.5
	positions := []math.Vec3{{X: -w, Y: -h}, {X: w, Y: -h}, {X: w, Y: h}, {X: -w, Y: h}}
	uvs := []math.Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	normals := []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	return NewMeshData("quad", positions, uvs, normals, []uint32{0, 1, 2, 2, 3, 0})
}

var cubeFaces = [6]struct {
	normal, u, v math.Vec3
}{
	{normal: math.Vec3{Z: 1}, u: math.Vec3{X: 1}, v: math.Vec3{Y: 1}},
	{normal: math.Vec3{Z: -1}, u: math.Vec3{X: -1}, v: math.Vec3{Y: 1}},
	{normal: math.Vec3{X: 1}, u: math.Vec3{Z: -1}, v: math.Vec3{Y: 1}},
	{normal: math.Vec3{X: -1}, u: math.Vec3{Z: 1}, v: math.Vec3{Y: 1}},
	{normal: math.Vec3{Y: 1}, u: math.Vec3{X: 1}, v: math.Vec3{Z: -1}},
	{normal: math.Vec3{Y: -1}, u: math.Vec3{X: 1}, v: math.Vec3{Z: 1}},
}

// NewCube builds an axis aligned cube of the given edge length centered on the origin.
func NewCube(size float32) *MeshData {
	half := size * 0.5
	positions := make([]math.Vec3, 0, 24)
	uvs := make([]math.Vec2, 0, 24)
	normals := make([]math.Vec3, 0, 24)
	indices := make([]uint32, 0, 36)

	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		base := uint32(len(positions))
		for _, c := range corners {
			p := f.normal.Add(f.u.MulScalar(c[0])).Add(f.v.MulScalar(c[1])).MulScalar(half)
			positions = append(positions, p)
			uvs = append(uvs, math.Vec2{X: (c[0] + 1) * 0.5, Y: (1 - c[1]) * 0.5})
			normals = append(normals, f.normal)
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return NewMeshData("cube", positions, uvs, normals, indices)
}

// NewPlane builds a width x depth grid in the XZ plane facing +Y, split into
// subdivisions cells per side. It carries no normals.
func NewPlane(width, depth float32, subdivisions int) *MeshData {
	n := max(subdivisions, 1)
	positions := make([]math.Vec3, 0, (n+1)*(n+1))
	uvs := make([]math.Vec2, 0, (n+1)*(n+1))
	for z := 0; z <= n; z++ {
		for x := 0; x <= n; x++ {
			u, v := float32(x)/float32(n), float32(z)/float32(n)
			positions = append(positions, math.Vec3{X: (u - 0.5) * width, Z: (0.5 - v) * depth})
			uvs = append(uvs, math.Vec2{X: u, Y: v})
		}
	}
	indices := make([]uint32, 0, n*n*6)
	stride := uint32(n + 1)
	for z := uint32(0); z < uint32(n); z++ {
		for x := uint32(0); x < uint32(n); x++ {
			i := z*stride + x
			indices = append(indices, i, i+1, i+stride+1, i+stride+1, i+stride, i)
		}
	}
	return NewMeshData("plane", positions, uvs, nil, indices)
}

// NewTriangles builds a non-indexed mesh without normals from a triangle list.
func NewTriangles(name string, positions []math.Vec3) *MeshData {
	return NewMeshData(name, positions, nil, nil, nil)
}
