// Package gputest provides an in-memory gpu.Driver that records every call, for tests.
package gputest

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type Buffer struct {
	Desc gpu.BufferDesc
	Data []byte
}

type Pool struct {
	Desc gpu.DescriptorPoolDesc
	Sets map[gpu.Handle]struct{}
}

type Set struct {
	Pool   gpu.Handle
	Layout gpu.Handle
	Writes []gpu.DescriptorWrite
}

type Submission struct {
	Commands []Command
	Wait     gpu.Handle
	Stage    gpu.PipelineStage
	Signal   gpu.Handle
	Fence    gpu.Handle
	OneShot  bool
}

// Driver is a fake gpu.Driver. Submitted work completes instantly: fences are
// signaled on submit and buffer copies are applied to buffer memory.
type Driver struct {
	next gpu.Handle

	Buffers         map[gpu.Handle]*Buffer
	Images          map[gpu.Handle]gpu.ImageDesc
	Samplers        map[gpu.Handle]gpu.SamplerDesc
	Accels          map[gpu.Handle]gpu.AccelStructDesc
	SetLayouts      map[gpu.Handle]gpu.DescriptorLayoutDesc
	Pools           map[gpu.Handle]*Pool
	Sets            map[gpu.Handle]*Set
	PipelineLayouts map[gpu.Handle]gpu.PipelineLayoutDesc
	Pipelines       map[gpu.Handle]gpu.GraphicsPipelineDesc
	QueryPools      map[gpu.Handle]uint32
	Fences          map[gpu.Handle]bool
	Semaphores      map[gpu.Handle]struct{}

	// Created counts creations per kind ("buffer", "set", "pipeline", ...).
	Created map[string]int
	// FreedSets lists descriptor sets in the order they were freed.
	FreedSets []gpu.Handle

	Recorders   []*Recorder
	Submissions []Submission
	Presents    []uint32

	// Swapchain state.
	SwapchainExtent     gpu.Extent
	SwapchainFormat     gpu.Format
	SwapchainImages     []gpu.Handle
	SwapchainGeneration uint64
	// SkipAcquires makes the next n acquires report core.ErrFrameSkipped.
	SkipAcquires int
	acquired     uint32

	// Fail makes the named method return the error once.
	Fail map[string]error
}

var _ gpu.Driver = (*Driver)(nil)

func NewDriver() *Driver {
	d := &Driver{
		Buffers:         make(map[gpu.Handle]*Buffer),
		Images:          make(map[gpu.Handle]gpu.ImageDesc),
		Samplers:        make(map[gpu.Handle]gpu.SamplerDesc),
		Accels:          make(map[gpu.Handle]gpu.AccelStructDesc),
		SetLayouts:      make(map[gpu.Handle]gpu.DescriptorLayoutDesc),
		Pools:           make(map[gpu.Handle]*Pool),
		Sets:            make(map[gpu.Handle]*Set),
		PipelineLayouts: make(map[gpu.Handle]gpu.PipelineLayoutDesc),
		Pipelines:       make(map[gpu.Handle]gpu.GraphicsPipelineDesc),
		QueryPools:      make(map[gpu.Handle]uint32),
		Fences:          make(map[gpu.Handle]bool),
		Semaphores:      make(map[gpu.Handle]struct{}),
		Created:         make(map[string]int),
		Fail:            make(map[string]error),
		SwapchainFormat: gpu.FormatBGRA8Unorm,
	}
	d.Resize(gpu.Extent{Width: 800, Height: 600})
	return d
}

// Resize recreates the fake swapchain with three images.
func (d *Driver) Resize(extent gpu.Extent) {
	d.SwapchainExtent = extent
	d.SwapchainGeneration++
	d.SwapchainImages = []gpu.Handle{d.handle("swapchain-image"), d.handle("swapchain-image"), d.handle("swapchain-image")}
	d.acquired = 0
}

func (d *Driver) handle(kind string) gpu.Handle {
	d.next++
	d.Created[kind]++
	return d.next
}

func (d *Driver) fail(method string) error {
	if err, ok := d.Fail[method]; ok {
		delete(d.Fail, method)
		return err
	}
	return nil
}

func (d *Driver) Limits() gpu.Limits {
	return gpu.Limits{
		MinUniformOffsetAlignment: 256,
		MinStorageOffsetAlignment: 256,
		TimestampPeriod:           1,
	}
}

func (d *Driver) CreateBuffer(desc gpu.BufferDesc) (gpu.Handle, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return gpu.NullHandle, err
	}
	h := d.handle("buffer")
	d.Buffers[h] = &Buffer{Desc: desc, Data: make([]byte, desc.Size)}
	return h, nil
}

func (d *Driver) DestroyBuffer(h gpu.Handle) {
	delete(d.Buffers, h)
}

func (d *Driver) MapBuffer(h gpu.Handle) ([]byte, error) {
	b, ok := d.Buffers[h]
	if !ok {
		return nil, fmt.Errorf("map of unknown buffer %d", h)
	}
	return b.Data, nil
}

func (d *Driver) UnmapBuffer(gpu.Handle) {}

func (d *Driver) CreateImage(desc gpu.ImageDesc) (gpu.Handle, error) {
	if err := d.fail("CreateImage"); err != nil {
		return gpu.NullHandle, err
	}
	h := d.handle("image")
	d.Images[h] = desc
	return h, nil
}

func (d *Driver) DestroyImage(h gpu.Handle) {
	delete(d.Images, h)
}

func (d *Driver) CreateSampler(desc gpu.SamplerDesc) (gpu.Handle, error) {
	h := d.handle("sampler")
	d.Samplers[h] = desc
	return h, nil
}

func (d *Driver) DestroySampler(h gpu.Handle) {
	delete(d.Samplers, h)
}

func (d *Driver) CreateAccelStruct(desc gpu.AccelStructDesc) (gpu.Handle, error) {
	h := d.handle("accel")
	d.Accels[h] = desc
	return h, nil
}

func (d *Driver) DestroyAccelStruct(h gpu.Handle) {
	delete(d.Accels, h)
}

func (d *Driver) CreateDescriptorSetLayout(desc gpu.DescriptorLayoutDesc) (gpu.Handle, error) {
	h := d.handle("set_layout")
	d.SetLayouts[h] = desc
	return h, nil
}

func (d *Driver) DestroyDescriptorSetLayout(h gpu.Handle) {
	delete(d.SetLayouts, h)
}

func (d *Driver) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.Handle, error) {
	h := d.handle("pool")
	d.Pools[h] = &Pool{Desc: desc, Sets: make(map[gpu.Handle]struct{})}
	return h, nil
}

func (d *Driver) DestroyDescriptorPool(h gpu.Handle) {
	if p, ok := d.Pools[h]; ok {
		for s := range p.Sets {
			delete(d.Sets, s)
		}
	}
	delete(d.Pools, h)
}

func (d *Driver) AllocateDescriptorSet(pool, layout gpu.Handle) (gpu.Handle, error) {
	p, ok := d.Pools[pool]
	if !ok {
		return gpu.NullHandle, fmt.Errorf("unknown descriptor pool %d", pool)
	}
	if uint32(len(p.Sets)) >= p.Desc.MaxSets {
		return gpu.NullHandle, fmt.Errorf("descriptor pool %d exhausted", pool)
	}
	if _, ok := d.SetLayouts[layout]; !ok {
		return gpu.NullHandle, fmt.Errorf("unknown set layout %d", layout)
	}
	h := d.handle("set")
	p.Sets[h] = struct{}{}
	d.Sets[h] = &Set{Pool: pool, Layout: layout}
	return h, nil
}

func (d *Driver) FreeDescriptorSet(pool, set gpu.Handle) error {
	p, ok := d.Pools[pool]
	if !ok {
		return fmt.Errorf("unknown descriptor pool %d", pool)
	}
	if _, ok := p.Sets[set]; !ok {
		return fmt.Errorf("set %d not allocated from pool %d", set, pool)
	}
	delete(p.Sets, set)
	delete(d.Sets, set)
	d.FreedSets = append(d.FreedSets, set)
	return nil
}

func (d *Driver) UpdateDescriptorSet(set gpu.Handle, writes []gpu.DescriptorWrite) {
	if s, ok := d.Sets[set]; ok {
		s.Writes = append(s.Writes, writes...)
	}
}

func (d *Driver) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.Handle, error) {
	h := d.handle("pipeline_layout")
	d.PipelineLayouts[h] = desc
	return h, nil
}

func (d *Driver) DestroyPipelineLayout(h gpu.Handle) {
	delete(d.PipelineLayouts, h)
}

func (d *Driver) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Handle, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return gpu.NullHandle, err
	}
	h := d.handle("pipeline")
	d.Pipelines[h] = desc
	return h, nil
}

func (d *Driver) DestroyPipeline(h gpu.Handle) {
	delete(d.Pipelines, h)
}

func (d *Driver) CreateQueryPool(count uint32) (gpu.Handle, error) {
	h := d.handle("query_pool")
	d.QueryPools[h] = count
	return h, nil
}

func (d *Driver) DestroyQueryPool(h gpu.Handle) {
	delete(d.QueryPools, h)
}

// QueryResults reports query i as timestamp i*1000.
func (d *Driver) QueryResults(pool gpu.Handle, first, count uint32) ([]uint64, bool, error) {
	out := make([]uint64, count)
	for i := range out {
		out[i] = uint64(first+uint32(i)) * 1000
	}
	return out, true, nil
}

func (d *Driver) CreateFence(signaled bool) (gpu.Handle, error) {
	h := d.handle("fence")
	d.Fences[h] = signaled
	return h, nil
}

func (d *Driver) WaitFence(h gpu.Handle, timeout uint64) error {
	signaled, ok := d.Fences[h]
	if !ok {
		return fmt.Errorf("unknown fence %d", h)
	}
	if !signaled {
		return fmt.Errorf("fence %d would never signal", h)
	}
	return nil
}

func (d *Driver) ResetFence(h gpu.Handle) error {
	d.Fences[h] = false
	return nil
}

func (d *Driver) DestroyFence(h gpu.Handle) {
	delete(d.Fences, h)
}

func (d *Driver) CreateSemaphore() (gpu.Handle, error) {
	h := d.handle("semaphore")
	d.Semaphores[h] = struct{}{}
	return h, nil
}

func (d *Driver) DestroySemaphore(h gpu.Handle) {
	delete(d.Semaphores, h)
}

func (d *Driver) NewRecorder() (gpu.Recorder, error) {
	if err := d.fail("NewRecorder"); err != nil {
		return nil, err
	}
	r := &Recorder{}
	d.Recorders = append(d.Recorders, r)
	return r, nil
}

func (d *Driver) FreeRecorder(r gpu.Recorder) {
	if rec, ok := r.(*Recorder); ok {
		rec.Freed = true
	}
}

func (d *Driver) execute(rec *Recorder) {
	for _, c := range rec.Commands {
		if c.Op != OpCopyBuffer {
			continue
		}
		src, dst := d.Buffers[c.Src], d.Buffers[c.Dst]
		if src == nil || dst == nil {
			continue
		}
		copy(dst.Data[c.DstOffset:c.DstOffset+c.Size], src.Data[c.SrcOffset:c.SrcOffset+c.Size])
	}
}

func (d *Driver) SubmitAndWait(r gpu.Recorder) error {
	rec := r.(*Recorder)
	if !rec.Ended {
		return fmt.Errorf("submit of a recorder that was not ended")
	}
	d.execute(rec)
	d.Submissions = append(d.Submissions, Submission{Commands: append([]Command(nil), rec.Commands...), OneShot: true})
	return nil
}

func (d *Driver) Submit(r gpu.Recorder, wait gpu.Handle, stage gpu.PipelineStage, signal, fence gpu.Handle) error {
	rec := r.(*Recorder)
	if !rec.Ended {
		return fmt.Errorf("submit of a recorder that was not ended")
	}
	d.execute(rec)
	d.Submissions = append(d.Submissions, Submission{
		Commands: append([]Command(nil), rec.Commands...),
		Wait:     wait,
		Stage:    stage,
		Signal:   signal,
		Fence:    fence,
	})
	if fence != gpu.NullHandle {
		d.Fences[fence] = true
	}
	return nil
}

func (d *Driver) AcquireNextImage(signal gpu.Handle) (gpu.SwapchainImage, error) {
	if d.SkipAcquires > 0 {
		d.SkipAcquires--
		return gpu.SwapchainImage{}, core.ErrFrameSkipped
	}
	idx := d.acquired % uint32(len(d.SwapchainImages))
	d.acquired++
	return gpu.SwapchainImage{
		Index:      idx,
		Image:      d.SwapchainImages[idx],
		Extent:     d.SwapchainExtent,
		Format:     d.SwapchainFormat,
		Generation: d.SwapchainGeneration,
	}, nil
}

func (d *Driver) Present(wait gpu.Handle, imageIndex uint32) error {
	d.Presents = append(d.Presents, imageIndex)
	return nil
}

func (d *Driver) WaitIdle() error {
	return nil
}

// LastSubmission returns the most recent submission, one shot or not.
func (d *Driver) LastSubmission() (Submission, bool) {
	if len(d.Submissions) == 0 {
		return Submission{}, false
	}
	return d.Submissions[len(d.Submissions)-1], true
}

// FrameSubmissions returns only the per frame submissions.
func (d *Driver) FrameSubmissions() []Submission {
	var out []Submission
	for _, s := range d.Submissions {
		if !s.OneShot {
			out = append(out, s)
		}
	}
	return out
}

// Live returns the number of objects of each kind still alive, sorted by kind.
func (d *Driver) Live() []string {
	counts := map[string]int{
		"buffer":          len(d.Buffers),
		"image":           len(d.Images),
		"sampler":         len(d.Samplers),
		"set":             len(d.Sets),
		"pipeline":        len(d.Pipelines),
		"pipeline_layout": len(d.PipelineLayouts),
	}
	var out []string
	for k, v := range counts {
		if v > 0 {
			out = append(out, fmt.Sprintf("%s=%d", k, v))
		}
	}
	sort.Strings(out)
	return out
}
