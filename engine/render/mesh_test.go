package render

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/abyss/engine/assets"
	"github.com/spaghettifunk/abyss/engine/gpu"
	"github.com/spaghettifunk/abyss/engine/gpu/gputest"
	"github.com/spaghettifunk/abyss/engine/math"
)

func TestGPURecordSizes(t *testing.T) {
	assert.Equal(t, uint32(116), drawPushSize)
	assert.Equal(t, uint32(32), vertexSize)
	assert.Equal(t, 32, binary.Size(GpuLight{}))
	assert.Equal(t, 64, binary.Size(GpuMaterial{}))
	assert.Equal(t, 224, binary.Size(FrameUniforms{}))
	assert.Equal(t, 20, binary.Size(OverlayVertex{}))
}

func TestNewDrawPushNormalMatrix(t *testing.T) {
	model := math.NewMat4Scale(math.NewVec3(2, 4, 2)).Mul(math.NewMat4Translation(math.NewVec3(1, 2, 3)))
	d := NewDrawPush(model, 7)

	assert.Equal(t, uint32(7), d.MaterialI)
	assert.Equal(t, model, d.PositionMatrix)
	assert.InDelta(t, 0.5, d.NormalMatrix[0], 1e-6)
	assert.InDelta(t, 0.25, d.NormalMatrix[5], 1e-6)
	assert.InDelta(t, 0.5, d.NormalMatrix[10], 1e-6)
	for _, i := range []int{1, 2, 3, 4, 6, 7, 8, 9, 11} {
		assert.InDelta(t, 0, d.NormalMatrix[i], 1e-6, "element %d", i)
	}
}

func TestBuildVerticesSmoothNormals(t *testing.T) {
	positions := []math.Vec3{{X: 0}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	mesh := assets.NewMeshData("square", positions, nil, nil, []uint32{0, 1, 2, 2, 3, 0})

	vertices, indices := BuildVertices(mesh)
	require.Len(t, vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 2, 3, 0}, indices)
	for i, v := range vertices {
		assert.True(t, v.Normal.Compare(math.NewVec3(0, 0, 1), 1e-6), "vertex %d normal %v", i, v.Normal)
		assert.Equal(t, positions[i], v.Pos)
	}
}

func TestBuildVerticesSmoothNormalsAverageFaces(t *testing.T) {
	// Two faces meeting at a right angle along the X axis.
	positions := []math.Vec3{{X: 0}, {X: 1}, {Y: 1}, {Z: -1}}
	mesh := assets.NewMeshData("hinge", positions, nil, nil, []uint32{0, 1, 2, 0, 1, 3})

	vertices, _ := BuildVertices(mesh)
	shared := vertices[0].Normal
	assert.InDelta(t, 1, shared.Length(), 1e-5)
	assert.InDelta(t, shared.Y, shared.Z, 1e-5)
	assert.True(t, vertices[2].Normal.Compare(math.NewVec3(0, 0, 1), 1e-6))
}

func TestBuildVerticesFlatNormals(t *testing.T) {
	mesh := assets.NewTriangles("tris", []math.Vec3{
		{X: 0}, {X: 1}, {Y: 1},
		{X: 0}, {Z: 1}, {X: 1},
	})
	vertices, indices := BuildVertices(mesh)
	assert.Nil(t, indices)
	for i := 0; i < 3; i++ {
		assert.True(t, vertices[i].Normal.Compare(math.NewVec3(0, 0, 1), 1e-6))
	}
	for i := 3; i < 6; i++ {
		assert.True(t, vertices[i].Normal.Compare(math.NewVec3(0, 1, 0), 1e-6), "got %v", vertices[i].Normal)
	}
}

func TestBuildVerticesKeepsNormals(t *testing.T) {
	quad := assets.NewQuad(1, 1)
	vertices, _ := BuildVertices(quad)
	for _, v := range vertices {
		assert.Equal(t, math.NewVec3(0, 0, 1), v.Normal)
	}
	assert.Equal(t, math.NewVec2(0, 1), vertices[0].Uv)
}

func TestMeshCacheReusesUploads(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	cache := NewMeshCache(ctx)
	cube := assets.NewCube(1)

	a, err := cache.Get(cube)
	require.NoError(t, err)
	b, err := cache.Get(cube)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, cache.Len())
	assert.True(t, a.Indexed())
	assert.Equal(t, uint32(36), a.IndexCount)
	assert.Equal(t, uint64(24*32), a.VertexBuffer.Size)
	assert.Equal(t, gpu.MemoryGPUOnly, a.VertexBuffer.Memory)

	tris, err := cache.Get(assets.NewTriangles("tri", []math.Vec3{{X: 0}, {X: 1}, {Y: 1}}))
	require.NoError(t, err)
	assert.False(t, tris.Indexed())

	vb := a.VertexBuffer.Handle
	cache.Evict(cube.ID())
	assert.Equal(t, 1, cache.Len())
	assert.NotContains(t, driver.Buffers, vb)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestMeshCacheRejectsEmptyMesh(t *testing.T) {
	ctx, _ := gputest.NewContext(t)
	_, err := NewMeshCache(ctx).Get(assets.NewTriangles("empty", nil))
	assert.Error(t, err)
}

func TestTextureCache(t *testing.T) {
	ctx, driver := gputest.NewContext(t)
	array, err := gpu.NewTextureArray(ctx, 2)
	require.NoError(t, err)
	cache, err := NewTextureCache(ctx, array)
	require.NoError(t, err)

	index, err := cache.Get(nil)
	require.NoError(t, err)
	assert.Zero(t, index)

	red := assets.NewSolidTexture("red", 255, 0, 0, 255)
	index, err = cache.Get(red)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), index)
	again, err := cache.Get(red)
	require.NoError(t, err)
	assert.Equal(t, index, again)

	gray, err := assets.NewRawTexture("gray", 2, 2, assets.TextureR8, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	index, err = cache.Get(gray)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), index)
	assert.Equal(t, gpu.FormatR8Unorm, driver.Images[cache.textures[gray.ID()].image.Handle].Format)

	_, err = cache.Get(assets.NewSolidTexture("blue", 0, 0, 255, 255))
	assert.ErrorIs(t, err, gpu.ErrTextureArrayFull)

	cache.Evict(red.ID())
	assert.Equal(t, 1, array.Len())
	index, err = cache.Get(assets.NewSolidTexture("green", 0, 255, 0, 255))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), index)
}
