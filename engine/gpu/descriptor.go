package gpu

import (
	"encoding/binary"
	"hash/maphash"
)

// Descriptor is one binding of a descriptor set. Exactly the fields that match
// Kind are meaningful.
type Descriptor struct {
	Kind    DescriptorKind
	Buffer  SubBuffer
	Image   *Image
	Sampler *Sampler
	Accel   *AccelStruct
}

// EmptyDescriptor leaves a gap in a set.
var EmptyDescriptor = Descriptor{}

// Equal compares by the underlying objects, not by the wrapper values.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Kind != o.Kind {
		return false
	}
	switch d.Kind {
	case DescriptorEmpty:
		return true
	case DescriptorUniformBuffer, DescriptorStorageBuffer:
		return d.Buffer.Buffer == o.Buffer.Buffer &&
			d.Buffer.Offset == o.Buffer.Offset &&
			d.Buffer.Size == o.Buffer.Size
	case DescriptorSampledImage, DescriptorStorageImage:
		return d.Image == o.Image
	case DescriptorImageSampler:
		return d.Image == o.Image && d.Sampler == o.Sampler
	case DescriptorSampler:
		return d.Sampler == o.Sampler
	case DescriptorAccelStruct:
		return d.Accel == o.Accel
	}
	return false
}

// References reports whether the descriptor points at r.
func (d Descriptor) References(r Resource) bool {
	id := r.ID()
	switch d.Kind {
	case DescriptorUniformBuffer, DescriptorStorageBuffer:
		return d.Buffer.Buffer != nil && d.Buffer.Buffer.id == id
	case DescriptorSampledImage, DescriptorStorageImage:
		return d.Image != nil && d.Image.id == id
	case DescriptorImageSampler:
		return (d.Image != nil && d.Image.id == id) || (d.Sampler != nil && d.Sampler.id == id)
	case DescriptorSampler:
		return d.Sampler != nil && d.Sampler.id == id
	case DescriptorAccelStruct:
		return d.Accel != nil && d.Accel.id == id
	}
	return false
}

func (d Descriptor) writeHash(h *maphash.Hash) {
	var buf [8 * 4]byte
	b := buf[:0]
	b = append(b, byte(d.Kind))
	switch d.Kind {
	case DescriptorUniformBuffer, DescriptorStorageBuffer:
		if d.Buffer.Buffer != nil {
			b = binary.LittleEndian.AppendUint64(b, d.Buffer.Buffer.id)
		}
		b = binary.LittleEndian.AppendUint64(b, d.Buffer.Offset)
		b = binary.LittleEndian.AppendUint64(b, d.Buffer.Size)
	case DescriptorSampledImage, DescriptorStorageImage:
		b = appendID(b, d.Image)
	case DescriptorImageSampler:
		b = appendID(b, d.Image)
		b = appendID(b, d.Sampler)
	case DescriptorSampler:
		b = appendID(b, d.Sampler)
	case DescriptorAccelStruct:
		b = appendID(b, d.Accel)
	}
	h.Write(b)
}

func appendID[R interface {
	comparable
	Resource
}](b []byte, r R) []byte {
	var zero R
	if r == zero {
		return binary.LittleEndian.AppendUint64(b, 0)
	}
	return binary.LittleEndian.AppendUint64(b, r.ID())
}

// write fills in the native descriptor update for this descriptor at binding.
func (d Descriptor) write(binding uint32) DescriptorWrite {
	w := DescriptorWrite{Binding: binding, Kind: d.Kind}
	switch d.Kind {
	case DescriptorUniformBuffer, DescriptorStorageBuffer:
		w.Buffer = d.Buffer.Buffer.Handle
		w.Offset = d.Buffer.Offset
		w.Range = d.Buffer.Size
	case DescriptorSampledImage:
		w.Image = d.Image.Handle
		w.Layout = LayoutShaderReadOnly
	case DescriptorStorageImage:
		w.Image = d.Image.Handle
		w.Layout = LayoutGeneral
	case DescriptorImageSampler:
		w.Image = d.Image.Handle
		w.Layout = LayoutShaderReadOnly
		w.Sampler = d.Sampler.Handle
	case DescriptorSampler:
		w.Sampler = d.Sampler.Handle
	case DescriptorAccelStruct:
		w.Accel = d.Accel.Handle
	}
	return w
}

// DescriptorInfo describes one binding of a layout.
type DescriptorInfo struct {
	Kind  DescriptorKind
	Count uint32
}

func Binding(kind DescriptorKind) DescriptorInfo {
	return DescriptorInfo{Kind: kind, Count: 1}
}

func BindingArray(kind DescriptorKind, count uint32) DescriptorInfo {
	return DescriptorInfo{Kind: kind, Count: count}
}

type DescriptorLayout struct {
	Handle   Handle
	Bindings []DescriptorInfo
}

type DescriptorSet struct {
	Handle Handle
	Layout *DescriptorLayout

	descriptors []Descriptor
	pool        Handle
}

func (s *DescriptorSet) Descriptors() []Descriptor {
	return s.descriptors
}
