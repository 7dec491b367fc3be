package render

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/math"
)

// Mesh is geometry living in GPU only buffers. IndexBuffer is nil for
// non-indexed meshes.
type Mesh struct {
	VertexBuffer *gpu.Buffer
	IndexBuffer  *gpu.Buffer
	VertexCount  uint32
	IndexCount   uint32
}

func (m *Mesh) Indexed() bool {
	return m.IndexBuffer != nil
}

func (m *Mesh) destroy(ctx *gpu.Context) {
	ctx.DestroyBuffer(m.VertexBuffer)
	ctx.DestroyBuffer(m.IndexBuffer)
	m.VertexBuffer, m.IndexBuffer = nil, nil
}

// BuildVertices interleaves the streams of asset. Missing normals are
// generated: smooth for indexed meshes, flat per triangle otherwise.
func BuildVertices(asset assets.Mesh) ([]Vertex, []uint32) {
	vertices := make([]Vertex, asset.VertexCount())

	i := 0
	for p := range asset.Positions() {
		if i >= len(vertices) {
			break
		}
		vertices[i].Pos = p
		i++
	}
	i = 0
	for uv := range asset.UVs() {
		if i >= len(vertices) {
			break
		}
		vertices[i].Uv = uv
		i++
	}

	var indices []uint32
	if n, ok := asset.IndexCount(); ok {
		indices = make([]uint32, n)
		asset.WriteIndices(indices)
	}

	if normals, ok := asset.Normals(); ok {
		i = 0
		for n := range normals {
			if i >= len(vertices) {
				break
			}
			vertices[i].Normal = n
			i++
		}
		return vertices, indices
	}

	if indices != nil {
		smoothNormals(vertices, indices)
	} else {
		flatNormals(vertices)
	}
	return vertices, indices
}

func faceNormal(a, b, c math.Vec3) math.Vec3 {
	return b.Sub(a).Cross(c.Sub(a))
}

// smoothNormals sums the area weighted face normals around every vertex.
func smoothNormals(vertices []Vertex, indices []uint32) {
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		if int(max(i0, i1, i2)) >= len(vertices) {
			continue
		}
		n := faceNormal(vertices[i0].Pos, vertices[i1].Pos, vertices[i2].Pos)
		vertices[i0].Normal = vertices[i0].Normal.Add(n)
		vertices[i1].Normal = vertices[i1].Normal.Add(n)
		vertices[i2].Normal = vertices[i2].Normal.Add(n)
	}
	for i := range vertices {
		vertices[i].Normal = vertices[i].Normal.Normalized()
	}
}

func flatNormals(vertices []Vertex) {
	for t := 0; t+2 < len(vertices); t += 3 {
		n := faceNormal(vertices[t].Pos, vertices[t+1].Pos, vertices[t+2].Pos).Normalized()
		vertices[t].Normal = n
		vertices[t+1].Normal = n
		vertices[t+2].Normal = n
	}
}

// BuildMesh uploads asset into static vertex and index buffers.
func BuildMesh(ctx *gpu.Context, asset assets.Mesh) (*Mesh, error) {
	vertices, indices := BuildVertices(asset)
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh %s has no vertices", asset.ID())
	}

	vb, err := ctx.CreateStaticBuffer(gpu.BufferUsageVertex, encode(vertices))
	if err != nil {
		return nil, fmt.Errorf("upload vertices of mesh %s: %w", asset.ID(), err)
	}
	mesh := &Mesh{VertexBuffer: vb, VertexCount: uint32(len(vertices))}
	if len(indices) > 0 {
		ib, err := ctx.CreateStaticBuffer(gpu.BufferUsageIndex, encode(indices))
		if err != nil {
			ctx.DestroyBuffer(vb)
			return nil, fmt.Errorf("upload indices of mesh %s: %w", asset.ID(), err)
		}
		mesh.IndexBuffer = ib
		mesh.IndexCount = uint32(len(indices))
	}
	return mesh, nil
}
