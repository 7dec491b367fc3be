package gpu

import (
	"encoding/binary"
	"fmt"
)

const spirvMagic = 0x07230203

// SPIR-V opcodes used by reflection.
const (
	opName                  = 5
	opEntryPoint            = 15
	opTypeInt               = 21
	opTypeFloat             = 22
	opTypeVector            = 23
	opTypeMatrix            = 24
	opTypeImage             = 25
	opTypeSampler           = 26
	opTypeSampledImage      = 27
	opTypeArray             = 28
	opTypeRuntimeArray      = 29
	opTypeStruct            = 30
	opTypePointer           = 32
	opConstant              = 43
	opVariable              = 59
	opDecorate              = 71
	opMemberDecorate        = 72
	opTypeAccelStructureKHR = 5341
)

const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationArrayStride   = 6
	decorationMatrixStride  = 7
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

const (
	storageUniformConstant = 0
	storageUniform         = 2
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

const (
	execModelVertex   = 0
	execModelFragment = 4
	execModelCompute  = 5
)

type EntryPoint struct {
	Stage ShaderStage
	Name  string
}

// BindingInfo is a reflected descriptor binding. Count 0 means a runtime sized array.
type BindingInfo struct {
	Set     uint32
	Binding uint32
	Kind    DescriptorKind
	Count   uint32
	Stages  ShaderStage
	Name    string
}

type ShaderInfo struct {
	EntryPoints      []EntryPoint
	Bindings         []BindingInfo
	PushConstantSize uint32
}

// Entry returns the entry point name for stage.
func (s *ShaderInfo) Entry(stage ShaderStage) (string, bool) {
	for _, ep := range s.EntryPoints {
		if ep.Stage == stage {
			return ep.Name, true
		}
	}
	return "", false
}

// Stages is the union of every entry point stage.
func (s *ShaderInfo) Stages() ShaderStage {
	var stages ShaderStage
	for _, ep := range s.EntryPoints {
		stages |= ep.Stage
	}
	return stages
}

type spirvType struct {
	op       uint32
	operands []uint32
}

type spirvDecorations struct {
	set, binding       uint32
	hasSet, hasBinding bool
	block, bufferBlock bool
	arrayStride        uint32
	memberOffsets      map[uint32]uint32
	memberMatStride    map[uint32]uint32
}

type spirvModule struct {
	types       map[uint32]spirvType
	constants   map[uint32]uint32
	names       map[uint32]string
	decorations map[uint32]*spirvDecorations
}

func (m *spirvModule) decor(id uint32) *spirvDecorations {
	d, ok := m.decorations[id]
	if !ok {
		d = &spirvDecorations{}
		m.decorations[id] = d
	}
	return d
}

// decodeString reads a nul terminated literal string packed into words.
func decodeString(words []uint32) (string, int) {
	var b []byte
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(b), i + 1
			}
			b = append(b, c)
		}
	}
	return string(b), len(words)
}

// ReflectSPIRV extracts entry points, descriptor bindings and the push constant
// block size from a SPIR-V binary.
func ReflectSPIRV(code []byte) (*ShaderInfo, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSPIRV, len(code))
	}
	order := binary.ByteOrder(binary.LittleEndian)
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		if binary.BigEndian.Uint32(code) != spirvMagic {
			return nil, fmt.Errorf("%w: bad magic", ErrInvalidSPIRV)
		}
		order = binary.BigEndian
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}

	mod := &spirvModule{
		types:       make(map[uint32]spirvType),
		constants:   make(map[uint32]uint32),
		names:       make(map[uint32]string),
		decorations: make(map[uint32]*spirvDecorations),
	}
	info := &ShaderInfo{}
	type variable struct{ id, typ, storage uint32 }
	var variables []variable

	for pos := 5; pos < len(words); {
		count := int(words[pos] >> 16)
		op := words[pos] & 0xFFFF
		if count == 0 || pos+count > len(words) {
			return nil, fmt.Errorf("%w: truncated instruction at word %d", ErrInvalidSPIRV, pos)
		}
		args := words[pos+1 : pos+count]
		pos += count

		switch op {
		case opEntryPoint:
			if len(args) < 3 {
				continue
			}
			name, _ := decodeString(args[2:])
			if stage, ok := stageFromExecutionModel(args[0]); ok {
				info.EntryPoints = append(info.EntryPoints, EntryPoint{Stage: stage, Name: name})
			}
		case opName:
			if len(args) >= 2 {
				mod.names[args[0]], _ = decodeString(args[1:])
			}
		case opDecorate:
			if len(args) < 2 {
				continue
			}
			d := mod.decor(args[0])
			switch args[1] {
			case decorationDescriptorSet:
				if len(args) > 2 {
					d.set, d.hasSet = args[2], true
				}
			case decorationBinding:
				if len(args) > 2 {
					d.binding, d.hasBinding = args[2], true
				}
			case decorationBlock:
				d.block = true
			case decorationBufferBlock:
				d.bufferBlock = true
			case decorationArrayStride:
				if len(args) > 2 {
					d.arrayStride = args[2]
				}
			}
		case opMemberDecorate:
			if len(args) < 4 {
				continue
			}
			d := mod.decor(args[0])
			switch args[2] {
			case decorationOffset:
				if d.memberOffsets == nil {
					d.memberOffsets = make(map[uint32]uint32)
				}
				d.memberOffsets[args[1]] = args[3]
			case decorationMatrixStride:
				if d.memberMatStride == nil {
					d.memberMatStride = make(map[uint32]uint32)
				}
				d.memberMatStride[args[1]] = args[3]
			}
		case opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage, opTypeSampler,
			opTypeSampledImage, opTypeArray, opTypeRuntimeArray, opTypeStruct, opTypeAccelStructureKHR:
			if len(args) < 1 {
				continue
			}
			mod.types[args[0]] = spirvType{op: op, operands: args[1:]}
		case opTypePointer:
			if len(args) < 3 {
				continue
			}
			mod.types[args[0]] = spirvType{op: op, operands: args[1:]}
		case opConstant:
			if len(args) >= 3 {
				mod.constants[args[1]] = args[2]
			}
		case opVariable:
			if len(args) >= 3 {
				variables = append(variables, variable{id: args[1], typ: args[0], storage: args[2]})
			}
		}
	}

	stages := info.Stages()
	for _, v := range variables {
		ptr, ok := mod.types[v.typ]
		if !ok || ptr.op != opTypePointer || len(ptr.operands) < 2 {
			continue
		}
		pointee := ptr.operands[1]

		if v.storage == storagePushConstant {
			size := mod.sizeOf(pointee, 0)
			if size > info.PushConstantSize {
				info.PushConstantSize = size
			}
			continue
		}
		if v.storage != storageUniform && v.storage != storageUniformConstant && v.storage != storageStorageBuffer {
			continue
		}
		d := mod.decorations[v.id]
		if d == nil || !d.hasSet || !d.hasBinding {
			continue
		}

		elem, count := mod.unwrapArray(pointee)
		kind, ok := mod.kindOf(elem, v.storage)
		if !ok {
			return nil, fmt.Errorf("%w: unsupported descriptor type at set %d binding %d", ErrInvalidSPIRV, d.set, d.binding)
		}
		info.Bindings = append(info.Bindings, BindingInfo{
			Set:     d.set,
			Binding: d.binding,
			Kind:    kind,
			Count:   count,
			Stages:  stages,
			Name:    mod.names[v.id],
		})
	}
	sortBindings(info.Bindings)
	return info, nil
}

func stageFromExecutionModel(model uint32) (ShaderStage, bool) {
	switch model {
	case execModelVertex:
		return ShaderStageVertex, true
	case execModelFragment:
		return ShaderStageFragment, true
	case execModelCompute:
		return ShaderStageCompute, true
	}
	return 0, false
}

// unwrapArray returns the element type and array length. Runtime arrays have length 0.
func (m *spirvModule) unwrapArray(id uint32) (uint32, uint32) {
	t, ok := m.types[id]
	if !ok {
		return id, 1
	}
	switch t.op {
	case opTypeArray:
		if len(t.operands) < 2 {
			return id, 1
		}
		return t.operands[0], m.constants[t.operands[1]]
	case opTypeRuntimeArray:
		if len(t.operands) < 1 {
			return id, 1
		}
		return t.operands[0], 0
	}
	return id, 1
}

func (m *spirvModule) kindOf(id, storage uint32) (DescriptorKind, bool) {
	t, ok := m.types[id]
	if !ok {
		return DescriptorEmpty, false
	}
	switch t.op {
	case opTypeStruct:
		d := m.decorations[id]
		switch {
		case storage == storageStorageBuffer:
			return DescriptorStorageBuffer, true
		case d != nil && d.bufferBlock:
			return DescriptorStorageBuffer, true
		default:
			return DescriptorUniformBuffer, true
		}
	case opTypeSampledImage:
		return DescriptorImageSampler, true
	case opTypeImage:
		// operands: sampled type, dim, depth, arrayed, ms, sampled, format
		if len(t.operands) >= 6 && t.operands[5] == 2 {
			return DescriptorStorageImage, true
		}
		return DescriptorSampledImage, true
	case opTypeSampler:
		return DescriptorSampler, true
	case opTypeAccelStructureKHR:
		return DescriptorAccelStruct, true
	}
	return DescriptorEmpty, false
}

// sizeOf computes the byte size of a type as laid out in a push constant block.
func (m *spirvModule) sizeOf(id, matrixStride uint32) uint32 {
	t, ok := m.types[id]
	if !ok || (t.op != opTypeStruct && len(t.operands) == 0) {
		return 0
	}
	if (t.op == opTypeVector || t.op == opTypeMatrix || t.op == opTypeArray) && len(t.operands) < 2 {
		return 0
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return t.operands[0] / 8
	case opTypeVector:
		return m.sizeOf(t.operands[0], 0) * t.operands[1]
	case opTypeMatrix:
		if matrixStride != 0 {
			return matrixStride * t.operands[1]
		}
		return m.sizeOf(t.operands[0], 0) * t.operands[1]
	case opTypeArray:
		length := m.constants[t.operands[1]]
		if d := m.decorations[id]; d != nil && d.arrayStride != 0 {
			return d.arrayStride * length
		}
		return m.sizeOf(t.operands[0], 0) * length
	case opTypeStruct:
		d := m.decorations[id]
		var size uint32
		for i, member := range t.operands {
			var offset, stride uint32
			if d != nil {
				offset = d.memberOffsets[uint32(i)]
				stride = d.memberMatStride[uint32(i)]
			}
			if end := offset + m.sizeOf(member, stride); end > size {
				size = end
			}
		}
		return size
	}
	return 0
}
