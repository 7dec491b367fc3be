package gpu

import (
	"fmt"
)

const frameAllocatorAlignment = 256

// FrameAllocator hands out short lived host visible memory. Everything it
// returned becomes invalid on the next NewFrame, which must only be called once
// the previous frame's fence has signaled.
type FrameAllocator struct {
	buffer *Buffer
	mapped []byte
	cursor uint64
	peak   uint64
}

func NewFrameAllocator(ctx *Context, size uint64) (*FrameAllocator, error) {
	buffer, err := ctx.CreateBuffer(size,
		BufferUsageTransferSrc|BufferUsageUniform|BufferUsageStorage|BufferUsageVertex|BufferUsageIndex,
		MemoryCPUToGPU)
	if err != nil {
		return nil, err
	}
	buffer.SetName("frame-allocator")
	mapped, err := buffer.Map()
	if err != nil {
		ctx.DestroyBuffer(buffer)
		return nil, err
	}
	return &FrameAllocator{buffer: buffer, mapped: mapped}, nil
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

func (f *FrameAllocator) NewFrame() {
	if f.cursor > f.peak {
		f.peak = f.cursor
	}
	f.cursor = 0
}

// Allocate reserves size bytes and returns the view plus the host memory backing it.
func (f *FrameAllocator) Allocate(size uint64) (SubBuffer, []byte, error) {
	offset := alignUp(f.cursor, frameAllocatorAlignment)
	if offset+size > f.buffer.Size {
		return SubBuffer{}, nil, fmt.Errorf("%w: %d bytes requested, %d of %d used", ErrFrameAllocatorFull, size, f.cursor, f.buffer.Size)
	}
	f.cursor = offset + size
	sub := SubBuffer{Buffer: f.buffer, Offset: offset, Size: size}
	return sub, f.mapped[offset : offset+size : offset+size], nil
}

// AllocateData copies data into a fresh allocation.
func (f *FrameAllocator) AllocateData(data []byte) (SubBuffer, error) {
	sub, mem, err := f.Allocate(uint64(len(data)))
	if err != nil {
		return SubBuffer{}, err
	}
	copy(mem, data)
	return sub, nil
}

func (f *FrameAllocator) Used() uint64 {
	return f.cursor
}

func (f *FrameAllocator) Capacity() uint64 {
	return f.buffer.Size
}

// Peak is the largest frame seen so far.
func (f *FrameAllocator) Peak() uint64 {
	return max(f.peak, f.cursor)
}

func (f *FrameAllocator) destroy(ctx *Context) {
	f.buffer.Unmap()
	ctx.DestroyBuffer(f.buffer)
	f.mapped = nil
}
