package settings

import (
	"testing"

	"github.com/obsidianstack/volumectl/internal/registry"
)

func TestResolver_UnregisteredHandleKeepsRequestedVolume(t *testing.T) {
	m, _ := newManager(t, `{"a:x": 0.5}`, WithWatch(false))
	r := NewResolver(m, registry.New())

	if got := r.Multiplier(registry.NextHandle(), 0.8); got != 0.8 {
		t.Errorf("Multiplier(unregistered, 0.8): got %v, want 0.8", got)
	}
	if m.Metrics().ResolveMisses.Value() != 1 {
		t.Errorf("ResolveMisses: got %d, want 1", m.Metrics().ResolveMisses.Value())
	}
}

func TestResolver_RegisteredHandleScales(t *testing.T) {
	m, _ := newManager(t, `{"a:x": 0.5}`, WithWatch(false))
	reg := registry.New()
	r := NewResolver(m, reg)

	h := registry.NextHandle()
	reg.Register(h, "a:x")

	if got := r.Multiplier(h, 0.8); got != 0.4 {
		t.Errorf("Multiplier: got %v, want 0.4", got)
	}
	if id, ok := r.Lookup(h); !ok || id != "a:x" {
		t.Errorf("Lookup: got (%q, %v)", id, ok)
	}
}

func TestResolver_RegisteredWithoutOverride(t *testing.T) {
	m, _ := newManager(t, "", WithWatch(false))
	reg := registry.New()
	r := NewResolver(m, reg)

	h := registry.NextHandle()
	reg.Register(h, "a:new-content")

	if got := r.Multiplier(h, 0.6); got != 0.6 {
		t.Errorf("Multiplier: got %v, want 0.6", got)
	}
}

func TestResolver_FollowsSetVolume(t *testing.T) {
	m, _ := newManager(t, "", WithWatch(false))
	reg := registry.New()
	r := NewResolver(m, reg)
	h := registry.NextHandle()
	reg.Register(h, "a:x")

	if !r.SetVolume("a:x", 0.25) {
		t.Fatal("SetVolume: expected changed")
	}
	if got := r.Volume("a:x"); got != 0.25 {
		t.Errorf("Volume: got %v, want 0.25", got)
	}
	if got := r.Multiplier(h, 1); got != 0.25 {
		t.Errorf("Multiplier: got %v, want 0.25", got)
	}
}
