package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

type vulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	Pool   vk.DescriptorPool
}

func descriptorType(kind gpu.DescriptorKind) (vk.DescriptorType, error) {
	switch kind {
	case gpu.DescriptorUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, nil
	case gpu.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case gpu.DescriptorSampledImage:
		return vk.DescriptorTypeSampledImage, nil
	case gpu.DescriptorStorageImage:
		return vk.DescriptorTypeStorageImage, nil
	case gpu.DescriptorImageSampler:
		return vk.DescriptorTypeCombinedImageSampler, nil
	case gpu.DescriptorSampler:
		return vk.DescriptorTypeSampler, nil
	}
	return 0, fmt.Errorf("%w: descriptor kind %s", gpu.ErrUnsupported, kind)
}

func (d *Driver) CreateDescriptorSetLayout(desc gpu.DescriptorLayoutDesc) (gpu.Handle, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Bindings))
	flags := make([]vk.DescriptorBindingFlags, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if b.Kind == gpu.DescriptorEmpty {
			continue
		}
		t, err := descriptorType(b.Kind)
		if err != nil {
			return gpu.NullHandle, err
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  t,
			DescriptorCount: max(b.Count, 1),
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		})
		var f vk.DescriptorBindingFlags
		if b.Bindless {
			f = vk.DescriptorBindingFlags(vk.DescriptorBindingUpdateAfterBindBit | vk.DescriptorBindingPartiallyBoundBit)
		}
		flags = append(flags, f)
	}

	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if desc.UpdateAfterBind {
		info.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
		// The chained struct is read by the loader as its C layout: the slice
		// header starts with the data pointer.
		info.PNext = unsafe.Pointer(&vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		})
	}

	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device(), &info, d.context.Allocator, &layout)
	if err := vkCheck("vkCreateDescriptorSetLayout", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.setLayouts.put(d.handles.allocate(), layout), nil
}

func (d *Driver) DestroyDescriptorSetLayout(h gpu.Handle) {
	if l, ok := d.setLayouts.take(h); ok {
		vk.DestroyDescriptorSetLayout(d.device(), l, d.context.Allocator)
	}
}

func (d *Driver) CreateDescriptorPool(desc gpu.DescriptorPoolDesc) (gpu.Handle, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(gpu.AllDescriptorKinds))
	for _, kind := range gpu.AllDescriptorKinds {
		t, err := descriptorType(kind)
		if err != nil {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: desc.PerKind})
	}

	flags := vk.DescriptorPoolCreateFreeDescriptorSetBit
	if desc.UpdateAfterBind {
		flags |= vk.DescriptorPoolCreateUpdateAfterBindBit
	}
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.device(), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(flags),
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, d.context.Allocator, &pool)
	if err := vkCheck("vkCreateDescriptorPool", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.pools.put(d.handles.allocate(), pool), nil
}

// DestroyDescriptorPool also releases every set still allocated from the pool.
func (d *Driver) DestroyDescriptorPool(h gpu.Handle) {
	pool, ok := d.pools.take(h)
	if !ok {
		return
	}
	var orphans []gpu.Handle
	d.sets.each(func(sh gpu.Handle, s *vulkanDescriptorSet) {
		if s.Pool == pool {
			orphans = append(orphans, sh)
		}
	})
	for _, sh := range orphans {
		d.sets.take(sh)
	}
	vk.DestroyDescriptorPool(d.device(), pool, d.context.Allocator)
}

func (d *Driver) AllocateDescriptorSet(pool, layout gpu.Handle) (gpu.Handle, error) {
	p, ok := d.pools.get(pool)
	if !ok {
		return gpu.NullHandle, fmt.Errorf("unknown descriptor pool %d", pool)
	}
	l, ok := d.setLayouts.get(layout)
	if !ok {
		return gpu.NullHandle, fmt.Errorf("unknown descriptor set layout %d", layout)
	}
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(d.device(), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l},
	}, &set)
	if err := vkCheck("vkAllocateDescriptorSets", res); err != nil {
		return gpu.NullHandle, err
	}
	return d.sets.put(d.handles.allocate(), &vulkanDescriptorSet{Handle: set, Pool: p}), nil
}

func (d *Driver) FreeDescriptorSet(pool, set gpu.Handle) error {
	s, ok := d.sets.take(set)
	if !ok {
		return nil
	}
	res := vk.FreeDescriptorSets(d.device(), s.Pool, 1, &s.Handle)
	return vkCheck("vkFreeDescriptorSets", res)
}

func (d *Driver) UpdateDescriptorSet(set gpu.Handle, writes []gpu.DescriptorWrite) {
	s, ok := d.sets.get(set)
	if !ok || len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		t, err := descriptorType(w.Kind)
		if err != nil {
			core.LogWarn("skipping descriptor write: %s", err)
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.Handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  t,
		}
		switch w.Kind {
		case gpu.DescriptorUniformBuffer, gpu.DescriptorStorageBuffer:
			b, ok := d.buffers.get(w.Buffer)
			if !ok {
				continue
			}
			rng := vk.DeviceSize(w.Range)
			if w.Range == 0 {
				rng = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: b.Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  rng,
			}}
		default:
			info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayout(w.Layout)}
			if img, ok := d.images.get(w.Image); ok {
				info.ImageView = img.View
			}
			if smp, ok := d.samplers.get(w.Sampler); ok {
				info.Sampler = smp
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		vkWrites = append(vkWrites, write)
	}
	vk.UpdateDescriptorSets(d.device(), uint32(len(vkWrites)), vkWrites, 0, nil)
}
