package settings

import (
	"log/slog"

	"github.com/obsidianstack/volumectl/internal/registry"
	"github.com/obsidianstack/volumectl/internal/volume"
)

// Resolver answers volume questions for the playback path and the editor.
type Resolver struct {
	settings *Manager
	registry *registry.Registry
}

// NewResolver returns a Resolver reading overrides from m and handle
// mappings from reg.
func NewResolver(m *Manager, reg *registry.Registry) *Resolver {
	return &Resolver{settings: m, registry: reg}
}

// Volume returns the override for id, or volume.Default.
func (r *Resolver) Volume(id volume.Identifier) float32 {
	return r.settings.Volume(id)
}

// SetVolume clamps and stores v for id, persisting only on change.
func (r *Resolver) SetVolume(id volume.Identifier, v float32) bool {
	return r.settings.SetVolume(id, v)
}

// Lookup returns the identifier registered for h.
func (r *Resolver) Lookup(h registry.Handle) (volume.Identifier, bool) {
	return r.registry.Lookup(h)
}

// Multiplier scales requested by the override for the resource behind h.
// An unregistered handle returns requested unchanged: sound must play even
// when no identifier can be found.
func (r *Resolver) Multiplier(h registry.Handle, requested float32) float32 {
	mt := r.settings.metrics
	mt.Resolves.Inc()

	id, ok := r.registry.Lookup(h)
	if !ok {
		mt.ResolveMisses.Inc()
		slog.Debug("resolver: handle not registered, playing at requested volume", "handle", uint64(h))
		return requested
	}
	return requested * r.settings.Volume(id)
}
