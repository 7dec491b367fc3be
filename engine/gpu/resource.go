package gpu

// Resource is anything a descriptor can reference. Destroying one through the
// Context purges every cached descriptor set that still points at it.
type Resource interface {
	ID() uint64
	Name() string
}

type resource struct {
	id   uint64
	name string
}

func (r *resource) ID() uint64 {
	return r.id
}

func (r *resource) Name() string {
	return r.name
}

// SetName labels the resource for logs.
func (r *resource) SetName(name string) {
	r.name = name
}
