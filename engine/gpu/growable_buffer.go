package gpu

import (
	"encoding/binary"
	"fmt"
)

const minStorageBufferSize = 16

// GrowableStorageBuffer mirrors a CPU list of fixed size records into a GPU
// storage buffer. The GPU buffer is replaced only when it is too small, so its
// capacity never shrinks.
//
// T must have a fixed binary size (no slices, maps or strings) and be laid out
// with explicit padding to match the shader's std430 struct.
type GrowableStorageBuffer[T any] struct {
	ctx        *Context
	name       string
	items      []T
	recordSize uint64
	buffer     *Buffer
	// dstStage is where the uploaded data is read next.
	dstStage PipelineStage
	scratch  []byte
}

func NewGrowableStorageBuffer[T any](ctx *Context, name string) *GrowableStorageBuffer[T] {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		panic(fmt.Sprintf("growable buffer %s: record type %T has no fixed size", name, zero))
	}
	return &GrowableStorageBuffer[T]{
		ctx:        ctx,
		name:       name,
		recordSize: uint64(size),
		dstStage:   StageFragmentShader,
	}
}

// ReadAt changes the stage the upload barrier waits for.
func (g *GrowableStorageBuffer[T]) ReadAt(stage PipelineStage) *GrowableStorageBuffer[T] {
	g.dstStage = stage
	return g
}

func (g *GrowableStorageBuffer[T]) Add(item T) int {
	g.items = append(g.items, item)
	return len(g.items) - 1
}

func (g *GrowableStorageBuffer[T]) Len() int {
	return len(g.items)
}

func (g *GrowableStorageBuffer[T]) Items() []T {
	return g.items
}

// Clear empties the CPU list and keeps the GPU buffer for reuse.
func (g *GrowableStorageBuffer[T]) Clear() {
	g.items = g.items[:0]
}

func (g *GrowableStorageBuffer[T]) RecordSize() uint64 {
	return g.recordSize
}

// Buffer is the current GPU buffer. It changes when an upload grows it.
func (g *GrowableStorageBuffer[T]) Buffer() *Buffer {
	return g.buffer
}

func (g *GrowableStorageBuffer[T]) Capacity() uint64 {
	if g.buffer == nil {
		return 0
	}
	return g.buffer.Size
}

// Descriptor binds the whole GPU buffer. Valid after the first Upload.
func (g *GrowableStorageBuffer[T]) Descriptor() Descriptor {
	return g.buffer.All().Storage()
}

func (g *GrowableStorageBuffer[T]) ensure(size uint64) error {
	size = max(size, g.recordSize, minStorageBufferSize)
	if g.buffer != nil && g.buffer.Size >= size {
		return nil
	}
	if g.buffer != nil {
		size = max(size, g.buffer.Size*2)
		g.ctx.DestroyBuffer(g.buffer)
		g.buffer = nil
	}
	buffer, err := g.ctx.CreateBuffer(size, BufferUsageStorage|BufferUsageTransferDst, MemoryGPUOnly)
	if err != nil {
		return fmt.Errorf("grow %s: %w", g.name, err)
	}
	buffer.SetName(g.name)
	g.buffer = buffer
	return nil
}

// Upload stages the list through the frame allocator, copies it into the GPU
// buffer and makes the copy visible to shader reads.
func (g *GrowableStorageBuffer[T]) Upload(cb *CommandBuffer) error {
	size := uint64(len(g.items)) * g.recordSize
	if err := g.ensure(size); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	data, err := binary.Append(g.scratch[:0], binary.LittleEndian, g.items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", g.name, err)
	}
	g.scratch = data

	staging, err := g.ctx.Frame.AllocateData(data)
	if err != nil {
		return fmt.Errorf("stage %s: %w", g.name, err)
	}
	dst, err := g.buffer.Sub(0, size)
	if err != nil {
		return err
	}
	if err := cb.CopyBuffer(staging, dst); err != nil {
		return err
	}
	return cb.BufferBarrier(dst, StageTransfer, AccessTransferWrite, g.dstStage, AccessShaderRead)
}

func (g *GrowableStorageBuffer[T]) Destroy() {
	g.ctx.DestroyBuffer(g.buffer)
	g.buffer = nil
	g.items = nil
}
