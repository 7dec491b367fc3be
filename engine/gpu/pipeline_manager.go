package gpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaghettifunk/abyss/engine/core"
)

// PipelineManager builds pipelines and memoizes pipeline layouts and shader reflection.
type PipelineManager struct {
	driver      Driver
	descriptors *DescriptorManager
	// runtimeArrayCount sizes unbounded descriptor arrays found by reflection.
	runtimeArrayCount uint32

	layouts     map[string]*PipelineLayout
	reflections map[*ShaderModule]*ShaderInfo
	pipelines   map[*GraphicsPipeline]struct{}
}

func NewPipelineManager(driver Driver, descriptors *DescriptorManager, runtimeArrayCount uint32) *PipelineManager {
	return &PipelineManager{
		driver:            driver,
		descriptors:       descriptors,
		runtimeArrayCount: runtimeArrayCount,
		layouts:           make(map[string]*PipelineLayout),
		reflections:       make(map[*ShaderModule]*ShaderInfo),
		pipelines:         make(map[*GraphicsPipeline]struct{}),
	}
}

// Reflect parses module once and caches the result.
func (m *PipelineManager) Reflect(module *ShaderModule) (*ShaderInfo, error) {
	if info, ok := m.reflections[module]; ok {
		return info, nil
	}
	info, err := ReflectSPIRV(module.Code)
	if err != nil {
		return nil, fmt.Errorf("reflect shader %s: %w", module.Name, err)
	}
	m.reflections[module] = info
	return info, nil
}

// Forget drops the cached reflection of module.
func (m *PipelineManager) Forget(module *ShaderModule) {
	delete(m.reflections, module)
}

func pipelineLayoutKey(pushConstantSize uint32, setLayouts []*DescriptorLayout) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(pushConstantSize), 10))
	for _, l := range setLayouts {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatUint(uint64(l.Handle), 16))
	}
	return sb.String()
}

// GetLayout returns the pipeline layout for the ordered set layouts.
func (m *PipelineManager) GetLayout(pushConstantSize uint32, setLayouts ...*DescriptorLayout) (*PipelineLayout, error) {
	key := pipelineLayoutKey(pushConstantSize, setLayouts)
	if layout, ok := m.layouts[key]; ok {
		return layout, nil
	}

	handles := make([]Handle, len(setLayouts))
	for i, l := range setLayouts {
		handles[i] = l.Handle
	}
	handle, err := m.driver.CreatePipelineLayout(PipelineLayoutDesc{
		SetLayouts:       handles,
		PushConstantSize: pushConstantSize,
	})
	if err != nil {
		err = fmt.Errorf("failed to create pipeline layout: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	layout := &PipelineLayout{
		Handle:           handle,
		SetLayouts:       append([]*DescriptorLayout(nil), setLayouts...),
		PushConstantSize: pushConstantSize,
	}
	m.layouts[key] = layout
	return layout, nil
}

// LayoutFromBindings derives a pipeline layout from merged reflection data.
// Missing bindings become gaps and missing sets get the empty layout.
func (m *PipelineManager) LayoutFromBindings(pushConstantSize uint32, bindings []BindingInfo) (*PipelineLayout, error) {
	var sets [][]DescriptorInfo
	for _, b := range bindings {
		for uint32(len(sets)) <= b.Set {
			sets = append(sets, nil)
		}
		infos := sets[b.Set]
		for uint32(len(infos)) <= b.Binding {
			infos = append(infos, DescriptorInfo{})
		}
		count := b.Count
		if count == 0 {
			count = m.runtimeArrayCount
		}
		infos[b.Binding] = DescriptorInfo{Kind: b.Kind, Count: count}
		sets[b.Set] = infos
	}

	setLayouts := make([]*DescriptorLayout, len(sets))
	for i, infos := range sets {
		layout, err := m.descriptors.GetLayout(infos...)
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", i, err)
		}
		setLayouts[i] = layout
	}
	return m.GetLayout(pushConstantSize, setLayouts...)
}

// Create builds a graphics pipeline from options.
func (m *PipelineManager) Create(opts GraphicsPipelineOptions) (*GraphicsPipeline, error) {
	if opts.VertexShader == nil || opts.FragmentShader == nil {
		return nil, fmt.Errorf("pipeline %s: vertex and fragment shaders are required", opts.Name)
	}
	vsInfo, err := m.Reflect(opts.VertexShader)
	if err != nil {
		return nil, err
	}
	fsInfo, err := m.Reflect(opts.FragmentShader)
	if err != nil {
		return nil, err
	}
	vsEntry, ok := vsInfo.Entry(ShaderStageVertex)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no vertex entry point", ErrNoEntryPoint, opts.VertexShader.Name)
	}
	fsEntry, ok := fsInfo.Entry(ShaderStageFragment)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no fragment entry point", ErrNoEntryPoint, opts.FragmentShader.Name)
	}

	bindings, err := MergeBindings(vsInfo, fsInfo)
	if err != nil {
		err = fmt.Errorf("pipeline %s: %w", opts.Name, err)
		core.LogError(err.Error())
		return nil, err
	}

	layout := opts.Layout
	if layout == nil {
		push := max(vsInfo.PushConstantSize, fsInfo.PushConstantSize)
		if layout, err = m.LayoutFromBindings(push, bindings); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", opts.Name, err)
		}
	}

	desc := GraphicsPipelineDesc{
		Name:   opts.Name,
		Layout: layout.Handle,
		Stages: []ShaderStageDesc{
			{Stage: ShaderStageVertex, Name: opts.VertexShader.Name, Entry: vsEntry, Code: opts.VertexShader.Code},
			{Stage: ShaderStageFragment, Name: opts.FragmentShader.Name, Entry: fsEntry, Code: opts.FragmentShader.Code},
		},
		Topology: opts.Topology,
		Cull:     opts.Cull,
		Vertex:   opts.Vertex,
	}
	for _, c := range opts.Colors {
		desc.Colors = append(desc.Colors, ColorTarget{Format: c.Format, Blend: c.Blend})
	}
	if opts.Depth != nil {
		desc.Depth = &DepthState{Format: opts.Depth.Format, Write: opts.Depth.Write, Compare: opts.Depth.Compare}
	}

	handle, err := m.driver.CreateGraphicsPipeline(desc)
	if err != nil {
		err = fmt.Errorf("failed to create pipeline %s: %w", opts.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	pipeline := &GraphicsPipeline{
		Handle:   handle,
		Name:     opts.Name,
		Layout:   layout,
		Options:  opts,
		Bindings: bindings,
	}
	m.pipelines[pipeline] = struct{}{}
	core.LogDebug("created pipeline %s (%d bindings, %d bytes push constants)", opts.Name, len(bindings), layout.PushConstantSize)
	return pipeline, nil
}

func (m *PipelineManager) DestroyPipeline(p *GraphicsPipeline) {
	if p == nil || p.Handle == NullHandle {
		return
	}
	m.driver.DestroyPipeline(p.Handle)
	p.Handle = NullHandle
	delete(m.pipelines, p)
}

func (m *PipelineManager) Destroy() {
	for p := range m.pipelines {
		m.DestroyPipeline(p)
	}
	for key, layout := range m.layouts {
		m.driver.DestroyPipelineLayout(layout.Handle)
		delete(m.layouts, key)
	}
	m.reflections = make(map[*ShaderModule]*ShaderInfo)
}
