package gpu

import (
	"fmt"
	"sort"
)

// ShaderModule is a SPIR-V binary. Reflection is cached per module, so a
// reloaded shader needs a new module.
type ShaderModule struct {
	Name string
	Code []byte
}

func NewShaderModule(name string, code []byte) *ShaderModule {
	return &ShaderModule{Name: name, Code: code}
}

// MergeBindings combines the bindings of several stages into one table keyed
// by (set, binding). A kind mismatch at the same location fails.
func MergeBindings(infos ...*ShaderInfo) ([]BindingInfo, error) {
	type location struct{ set, binding uint32 }
	merged := make(map[location]int)
	var out []BindingInfo
	for _, info := range infos {
		if info == nil {
			continue
		}
		for _, b := range info.Bindings {
			loc := location{b.Set, b.Binding}
			idx, ok := merged[loc]
			if !ok {
				merged[loc] = len(out)
				out = append(out, b)
				continue
			}
			existing := &out[idx]
			if existing.Kind != b.Kind {
				return nil, &BindingConflictError{Set: b.Set, Binding: b.Binding, First: existing.Kind, Second: b.Kind}
			}
			existing.Stages |= b.Stages
			// a count of 0 is runtime sized and wins over any fixed count
			if existing.Count != 0 && (b.Count == 0 || b.Count > existing.Count) {
				existing.Count = b.Count
			}
		}
	}
	sortBindings(out)
	return out, nil
}

func sortBindings(bindings []BindingInfo) {
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].Set != bindings[j].Set {
			return bindings[i].Set < bindings[j].Set
		}
		return bindings[i].Binding < bindings[j].Binding
	})
}

type BindingConflictError struct {
	Set, Binding  uint32
	First, Second DescriptorKind
}

func (e *BindingConflictError) Error() string {
	return fmt.Sprintf("binding conflict at set %d binding %d: %s vs %s", e.Set, e.Binding, e.First, e.Second)
}

func (e *BindingConflictError) Unwrap() error {
	return ErrBindingConflict
}
