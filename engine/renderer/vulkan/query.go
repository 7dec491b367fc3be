package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/gpu"
)

func (d *Driver) CreateQueryPool(count uint32) (gpu.Handle, error) {
	var pool vk.QueryPool
	res := vk.CreateQueryPool(d.device(), &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: count,
	}, d.context.Allocator, &pool)
	if err := vkCheck("vkCreateQueryPool", res); err != nil {
		core.LogError(err.Error())
		return gpu.NullHandle, err
	}
	return d.queryPools.put(d.handles.allocate(), pool), nil
}

func (d *Driver) DestroyQueryPool(h gpu.Handle) {
	if p, ok := d.queryPools.take(h); ok {
		vk.DestroyQueryPool(d.device(), p, d.context.Allocator)
	}
}

func (d *Driver) QueryResults(pool gpu.Handle, first, count uint32) ([]uint64, bool, error) {
	p, ok := d.queryPools.get(pool)
	if !ok {
		return nil, false, fmt.Errorf("unknown query pool %d", pool)
	}
	if count == 0 {
		return nil, true, nil
	}
	results := make([]uint64, count)
	res := vk.GetQueryPoolResults(d.device(), p, first, count,
		uint(len(results)*8), unsafe.Pointer(&results[0]), 8,
		vk.QueryResultFlags(vk.QueryResult64Bit))
	switch res {
	case vk.Success:
		return results, true, nil
	case vk.NotReady:
		return nil, false, nil
	}
	return nil, false, vkCheck("vkGetQueryPoolResults", res)
}
