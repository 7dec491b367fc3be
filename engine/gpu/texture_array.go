package gpu

import (
	"fmt"

	"github.com/spaghettifunk/abyss/engine/core"
)

type textureSlot struct {
	image   *Image
	sampler *Sampler
}

/**
 * @brief A fixed size bindless array of combined image samplers. Shaders index
 * it with the value returned by Add minus one; zero means "no texture".
 */
type TextureArray struct {
	ctx    *Context
	pool   Handle
	layout *DescriptorLayout
	set    *DescriptorSet
	slots  []textureSlot
	used   int
}

func NewTextureArray(ctx *Context, capacity uint32) (*TextureArray, error) {
	layout, err := ctx.Descriptors.GetLayout(BindingArray(DescriptorImageSampler, capacity))
	if err != nil {
		return nil, err
	}
	pool, err := ctx.driver.CreateDescriptorPool(DescriptorPoolDesc{
		MaxSets:         1,
		PerKind:         capacity,
		UpdateAfterBind: true,
	})
	if err != nil {
		err = fmt.Errorf("failed to create texture array pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	handle, err := ctx.driver.AllocateDescriptorSet(pool, layout.Handle)
	if err != nil {
		ctx.driver.DestroyDescriptorPool(pool)
		err = fmt.Errorf("failed to allocate texture array set: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	ta := &TextureArray{
		ctx:    ctx,
		pool:   pool,
		layout: layout,
		set:    &DescriptorSet{Handle: handle, Layout: layout, pool: pool},
		slots:  make([]textureSlot, capacity),
	}
	ctx.OnDestroy(ta.onDestroyResource)
	return ta, nil
}

// Add stores the pair in the first free slot and returns its index plus one.
func (t *TextureArray) Add(image *Image, sampler *Sampler) (uint32, error) {
	for i := range t.slots {
		if t.slots[i].image != nil {
			continue
		}
		t.slots[i] = textureSlot{image: image, sampler: sampler}
		t.used++
		w := image.WithSampler(sampler).write(0)
		w.ArrayElement = uint32(i)
		t.ctx.driver.UpdateDescriptorSet(t.set.Handle, []DescriptorWrite{w})
		return uint32(i) + 1, nil
	}
	return 0, fmt.Errorf("%w: capacity %d", ErrTextureArrayFull, len(t.slots))
}

// Remove frees the slot returned by Add. Shaders must no longer index it.
func (t *TextureArray) Remove(index uint32) {
	if index == 0 || int(index) > len(t.slots) {
		return
	}
	if t.slots[index-1].image != nil {
		t.slots[index-1] = textureSlot{}
		t.used--
	}
}

func (t *TextureArray) onDestroyResource(r Resource) {
	id := r.ID()
	for i, slot := range t.slots {
		if slot.image == nil {
			continue
		}
		if slot.image.id == id || (slot.sampler != nil && slot.sampler.id == id) {
			t.Remove(uint32(i) + 1)
		}
	}
}

func (t *TextureArray) Set() *DescriptorSet {
	return t.set
}

func (t *TextureArray) Layout() *DescriptorLayout {
	return t.layout
}

func (t *TextureArray) Capacity() int {
	return len(t.slots)
}

func (t *TextureArray) Len() int {
	return t.used
}

func (t *TextureArray) Destroy() {
	if t.pool != NullHandle {
		t.ctx.driver.DestroyDescriptorPool(t.pool)
		t.pool = NullHandle
	}
	t.set.Handle = NullHandle
	clear(t.slots)
	t.used = 0
}
