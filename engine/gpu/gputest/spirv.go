package gputest

import (
	"encoding/binary"

	"github.com/spaghettifunk/abyss/engine/gpu"
)

// SPIR-V opcodes and enums needed to assemble test shaders.
const (
	OpName               = 5
	OpMemoryModel        = 14
	OpEntryPoint         = 15
	OpCapability         = 17
	OpTypeVoid           = 19
	OpTypeInt            = 21
	OpTypeFloat          = 22
	OpTypeVector         = 23
	OpTypeMatrix         = 24
	OpTypeImage          = 25
	OpTypeSampler        = 26
	OpTypeSampledImage   = 27
	OpTypeArray          = 28
	OpTypeRuntimeArray   = 29
	OpTypeStruct         = 30
	OpTypePointer        = 32
	OpConstant           = 43
	OpVariable           = 59
	OpDecorate           = 71
	OpMemberDecorate     = 72
	OpTypeAccelStructKHR = 5341

	DecorationBlock        = 2
	DecorationArrayStride  = 6
	DecorationMatrixStride = 7
	DecorationBinding      = 33
	DecorationSet          = 34
	DecorationOffset       = 35

	StorageUniformConstant = 0
	StorageUniform         = 2
	StoragePushConstant    = 9
	StorageStorageBuffer   = 12
)

// Module assembles a SPIR-V binary one instruction at a time.
type Module struct {
	words []uint32
	bound uint32
}

func NewModule() *Module {
	m := &Module{bound: 1}
	m.Op(OpCapability, 1)
	m.Op(OpMemoryModel, 0, 1)
	return m
}

// ID allocates a result id.
func (m *Module) ID() uint32 {
	id := m.bound
	m.bound++
	return id
}

func (m *Module) Op(op uint32, operands ...uint32) {
	m.words = append(m.words, uint32(len(operands)+1)<<16|op)
	m.words = append(m.words, operands...)
}

// String packs a nul terminated literal into words.
func String(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func (m *Module) EntryPoint(stage gpu.ShaderStage, name string) {
	model := uint32(0)
	switch stage {
	case gpu.ShaderStageFragment:
		model = 4
	case gpu.ShaderStageCompute:
		model = 5
	}
	m.Op(OpEntryPoint, append([]uint32{model, m.ID()}, String(name)...)...)
}

func (m *Module) Bytes() []byte {
	header := []uint32{0x07230203, 0x00010300, 0, m.bound, 0}
	out := make([]byte, 0, (len(header)+len(m.words))*4)
	for _, w := range header {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	for _, w := range m.words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

// ShaderBinding declares one resource for BuildShader. Count 0 is a runtime array.
type ShaderBinding struct {
	Set     uint32
	Binding uint32
	Kind    gpu.DescriptorKind
	Count   uint32
}

// BuildShader assembles a module with one "main" entry point, the given
// bindings and a push constant block of pushSize bytes (a multiple of 4).
func BuildShader(stage gpu.ShaderStage, pushSize uint32, bindings ...ShaderBinding) []byte {
	m := NewModule()
	m.EntryPoint(stage, "main")

	f32 := m.ID()
	m.Op(OpTypeFloat, f32, 32)
	u32 := m.ID()
	m.Op(OpTypeInt, u32, 32, 0)
	vec4 := m.ID()
	m.Op(OpTypeVector, vec4, f32, 4)

	for _, b := range bindings {
		var elem, storage uint32
		switch b.Kind {
		case gpu.DescriptorUniformBuffer, gpu.DescriptorStorageBuffer:
			elem = m.ID()
			m.Op(OpTypeStruct, elem, vec4)
			m.Op(OpDecorate, elem, DecorationBlock)
			m.Op(OpMemberDecorate, elem, 0, DecorationOffset, 0)
			storage = StorageUniform
			if b.Kind == gpu.DescriptorStorageBuffer {
				storage = StorageStorageBuffer
			}
		case gpu.DescriptorSampledImage, gpu.DescriptorStorageImage, gpu.DescriptorImageSampler:
			img := m.ID()
			sampled := uint32(1)
			if b.Kind == gpu.DescriptorStorageImage {
				sampled = 2
			}
			m.Op(OpTypeImage, img, f32, 1, 0, 0, 0, sampled, 0)
			elem = img
			if b.Kind == gpu.DescriptorImageSampler {
				elem = m.ID()
				m.Op(OpTypeSampledImage, elem, img)
			}
			storage = StorageUniformConstant
		case gpu.DescriptorSampler:
			elem = m.ID()
			m.Op(OpTypeSampler, elem)
			storage = StorageUniformConstant
		case gpu.DescriptorAccelStruct:
			elem = m.ID()
			m.Op(OpTypeAccelStructKHR, elem)
			storage = StorageUniformConstant
		default:
			continue
		}

		typ := elem
		switch {
		case b.Count == 0:
			typ = m.ID()
			m.Op(OpTypeRuntimeArray, typ, elem)
		case b.Count > 1:
			length := m.ID()
			m.Op(OpConstant, u32, length, b.Count)
			typ = m.ID()
			m.Op(OpTypeArray, typ, elem, length)
		}
		ptr := m.ID()
		m.Op(OpTypePointer, ptr, storage, typ)
		v := m.ID()
		m.Op(OpVariable, ptr, v, storage)
		m.Op(OpDecorate, v, DecorationSet, b.Set)
		m.Op(OpDecorate, v, DecorationBinding, b.Binding)
	}

	if pushSize > 0 {
		length := m.ID()
		m.Op(OpConstant, u32, length, pushSize/4)
		arr := m.ID()
		m.Op(OpTypeArray, arr, f32, length)
		m.Op(OpDecorate, arr, DecorationArrayStride, 4)
		block := m.ID()
		m.Op(OpTypeStruct, block, arr)
		m.Op(OpDecorate, block, DecorationBlock)
		m.Op(OpMemberDecorate, block, 0, DecorationOffset, 0)
		ptr := m.ID()
		m.Op(OpTypePointer, ptr, StoragePushConstant, block)
		v := m.ID()
		m.Op(OpVariable, ptr, v, StoragePushConstant)
	}
	return m.Bytes()
}
