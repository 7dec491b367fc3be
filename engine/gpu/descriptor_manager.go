package gpu

import (
	"fmt"
	"hash/maphash"
	"strconv"
	"strings"

	"github.com/spaghettifunk/abyss/engine/core"
)

type setEntry struct {
	key []Descriptor
	set *DescriptorSet
}

// DescriptorManager memoizes descriptor set layouts by their binding kinds and
// descriptor sets by the resources they bind. It is not safe for concurrent use.
type DescriptorManager struct {
	driver Driver
	pool   Handle
	seed   maphash.Seed

	layouts  map[string]*DescriptorLayout
	sets     map[uint64][]setEntry
	setCount int
}

func NewDescriptorManager(driver Driver, poolSize uint32) (*DescriptorManager, error) {
	pool, err := driver.CreateDescriptorPool(DescriptorPoolDesc{
		MaxSets: poolSize,
		PerKind: poolSize,
	})
	if err != nil {
		err = fmt.Errorf("failed to create descriptor pool: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return &DescriptorManager{
		driver:  driver,
		pool:    pool,
		seed:    maphash.MakeSeed(),
		layouts: make(map[string]*DescriptorLayout),
		sets:    make(map[uint64][]setEntry),
	}, nil
}

func layoutKey(infos []DescriptorInfo) string {
	var sb strings.Builder
	for _, info := range infos {
		sb.WriteString(strconv.Itoa(int(info.Kind)))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(info.Count), 10))
		sb.WriteByte(',')
	}
	return sb.String()
}

// GetLayout returns the layout for the ordered binding list. Empty kinds leave a gap.
func (m *DescriptorManager) GetLayout(infos ...DescriptorInfo) (*DescriptorLayout, error) {
	key := layoutKey(infos)
	if layout, ok := m.layouts[key]; ok {
		return layout, nil
	}

	desc := DescriptorLayoutDesc{}
	for i, info := range infos {
		if info.Kind == DescriptorEmpty {
			continue
		}
		if info.Count < 1 {
			return nil, fmt.Errorf("%w: binding %d (%s) has count %d", ErrInvalidDescriptorCount, i, info.Kind, info.Count)
		}
		binding := LayoutBinding{Binding: uint32(i), Kind: info.Kind, Count: info.Count}
		if info.Count > 1 {
			binding.Bindless = true
			desc.UpdateAfterBind = true
		}
		desc.Bindings = append(desc.Bindings, binding)
	}

	handle, err := m.driver.CreateDescriptorSetLayout(desc)
	if err != nil {
		err = fmt.Errorf("failed to create descriptor set layout [%s]: %w", key, err)
		core.LogError(err.Error())
		return nil, err
	}
	layout := &DescriptorLayout{
		Handle:   handle,
		Bindings: append([]DescriptorInfo(nil), infos...),
	}
	m.layouts[key] = layout
	return layout, nil
}

func (m *DescriptorManager) hash(descriptors []Descriptor) uint64 {
	var h maphash.Hash
	h.SetSeed(m.seed)
	for _, d := range descriptors {
		d.writeHash(&h)
	}
	return h.Sum64()
}

func descriptorsEqual(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// GetSet returns a set binding descriptors at bindings 0..n-1, allocating and
// writing it only the first time an equal sequence is requested.
func (m *DescriptorManager) GetSet(descriptors ...Descriptor) (*DescriptorSet, error) {
	h := m.hash(descriptors)
	for _, entry := range m.sets[h] {
		if descriptorsEqual(entry.key, descriptors) {
			return entry.set, nil
		}
	}

	infos := make([]DescriptorInfo, len(descriptors))
	for i, d := range descriptors {
		if d.Kind != DescriptorEmpty {
			infos[i] = Binding(d.Kind)
		}
	}
	layout, err := m.GetLayout(infos...)
	if err != nil {
		return nil, err
	}

	handle, err := m.driver.AllocateDescriptorSet(m.pool, layout.Handle)
	if err != nil {
		err = fmt.Errorf("failed to allocate descriptor set: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	writes := make([]DescriptorWrite, 0, len(descriptors))
	for i, d := range descriptors {
		if d.Kind == DescriptorEmpty {
			continue
		}
		writes = append(writes, d.write(uint32(i)))
	}
	m.driver.UpdateDescriptorSet(handle, writes)

	set := &DescriptorSet{
		Handle:      handle,
		Layout:      layout,
		descriptors: append([]Descriptor(nil), descriptors...),
		pool:        m.pool,
	}
	m.sets[h] = append(m.sets[h], setEntry{key: set.descriptors, set: set})
	m.setCount++
	return set, nil
}

// OnDestroyResource frees every cached set that references r. It must run
// before the native resource is released.
func (m *DescriptorManager) OnDestroyResource(r Resource) {
	for h, entries := range m.sets {
		kept := entries[:0]
		for _, entry := range entries {
			if !referencesAny(entry.key, r) {
				kept = append(kept, entry)
				continue
			}
			if err := m.driver.FreeDescriptorSet(entry.set.pool, entry.set.Handle); err != nil {
				core.LogWarn("failed to free descriptor set for %s: %s", r.Name(), err.Error())
			}
			entry.set.Handle = NullHandle
			m.setCount--
		}
		if len(kept) == 0 {
			delete(m.sets, h)
		} else {
			m.sets[h] = kept
		}
	}
}

func referencesAny(descriptors []Descriptor, r Resource) bool {
	for _, d := range descriptors {
		if d.References(r) {
			return true
		}
	}
	return false
}

// CachedSets returns how many sets are currently memoized.
func (m *DescriptorManager) CachedSets() int {
	return m.setCount
}

func (m *DescriptorManager) CachedLayouts() int {
	return len(m.layouts)
}

func (m *DescriptorManager) Destroy() {
	m.sets = make(map[uint64][]setEntry)
	m.setCount = 0
	if m.pool != NullHandle {
		m.driver.DestroyDescriptorPool(m.pool)
		m.pool = NullHandle
	}
	for key, layout := range m.layouts {
		m.driver.DestroyDescriptorSetLayout(layout.Handle)
		delete(m.layouts, key)
	}
}
