package registry

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/obsidianstack/volumectl/internal/volume"
)

// Handle is an opaque, comparable key for a loaded audio resource.
// The zero Handle means "no resource".
type Handle uint64

var lastHandle atomic.Uint64

// NextHandle returns a process-unique, non-zero Handle for loaders that
// have no stable key of their own.
func NextHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// Entry is one handle with its identifier.
type Entry struct {
	Handle Handle
	ID     volume.Identifier
}

// Registry is a concurrent Handle → Identifier map.
type Registry struct {
	m     sync.Map // Handle → volume.Identifier
	count atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register associates h with id, replacing any earlier association.
// A zero handle or empty identifier is logged and ignored. It reports
// whether the association was stored.
func (r *Registry) Register(h Handle, id volume.Identifier) bool {
	if h == 0 || id == "" {
		slog.Warn("registry: ignoring registration with missing handle or identifier",
			"handle", uint64(h), "id", string(id))
		return false
	}
	if _, loaded := r.m.Swap(h, id); !loaded {
		r.count.Add(1)
	}
	return true
}

// Lookup returns the identifier registered for h. A miss is normal while
// resources are still being routed through the load hook.
func (r *Registry) Lookup(h Handle) (volume.Identifier, bool) {
	v, ok := r.m.Load(h)
	if !ok {
		return "", false
	}
	return v.(volume.Identifier), true
}

// Len returns the number of registered handles.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Entries returns a snapshot of all associations sorted by handle.
func (r *Registry) Entries() []Entry {
	var out []Entry
	r.m.Range(func(k, v any) bool {
		out = append(out, Entry{Handle: k.(Handle), ID: v.(volume.Identifier)})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
