package gpu

import (
	"fmt"
)

type Buffer struct {
	resource
	Handle Handle
	Size   uint64
	Usage  BufferUsage
	Memory MemoryClass

	ctx    *Context
	mapped []byte
}

// SubBuffer is a non-owning view into a Buffer.
type SubBuffer struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

func (b *Buffer) Sub(offset, size uint64) (SubBuffer, error) {
	if offset+size > b.Size || offset+size < offset {
		return SubBuffer{}, fmt.Errorf("%w: %d+%d > %d", ErrOutOfBounds, offset, size, b.Size)
	}
	return SubBuffer{Buffer: b, Offset: offset, Size: size}, nil
}

func (b *Buffer) All() SubBuffer {
	return SubBuffer{Buffer: b, Size: b.Size}
}

func (b *Buffer) Mappable() bool {
	return b.Memory == MemoryCPUToGPU
}

// Map returns the whole buffer as host memory. The mapping stays valid until Unmap.
func (b *Buffer) Map() ([]byte, error) {
	if !b.Mappable() {
		return nil, fmt.Errorf("%w: %s", ErrNotMappable, b.name)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	data, err := b.ctx.driver.MapBuffer(b.Handle)
	if err != nil {
		return nil, fmt.Errorf("map buffer %s: %w", b.name, err)
	}
	b.mapped = data
	return data, nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.ctx.driver.UnmapBuffer(b.Handle)
	b.mapped = nil
}

// Write copies data into a host visible buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("%w: write %d bytes at %d into %d", ErrOutOfBounds, len(data), offset, b.Size)
	}
	wasMapped := b.mapped != nil
	mem, err := b.Map()
	if err != nil {
		return err
	}
	copy(mem[offset:], data)
	if !wasMapped {
		b.Unmap()
	}
	return nil
}

func (s SubBuffer) Valid() bool {
	return s.Buffer != nil
}

func (s SubBuffer) Uniform() Descriptor {
	return Descriptor{Kind: DescriptorUniformBuffer, Buffer: s}
}

func (s SubBuffer) Storage() Descriptor {
	return Descriptor{Kind: DescriptorStorageBuffer, Buffer: s}
}
