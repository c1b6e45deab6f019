package volume

import (
	"math"
	"sort"
)

// Volume bounds and the value used for identifiers without an entry.
const (
	Min     float32 = 0.0
	Max     float32 = 1.0
	Default float32 = 1.0
)

// tolerance below which two stored volumes are considered equal.
const tolerance = 0.0001

// Clamp forces v into [Min, Max]. NaN maps to Default.
func Clamp(v float32) float32 {
	switch {
	case v != v:
		return Default
	case v < Min:
		return Min
	case v > Max:
		return Max
	}
	return v
}

func same(a, b float32) bool {
	return math.Abs(float64(a)-float64(b)) <= tolerance
}

// Entry is one identifier with its stored volume.
type Entry struct {
	ID     Identifier
	Volume float32
}

// Table maps identifiers to volumes. The zero value is not usable; call
// NewTable. A Table is not safe for concurrent mutation.
type Table struct {
	volumes map[Identifier]float32
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{volumes: make(map[Identifier]float32)}
}

// TableFrom copies m into a new table. Values are stored as given; call
// Reconcile to clamp them.
func TableFrom(m map[Identifier]float32) *Table {
	t := &Table{volumes: make(map[Identifier]float32, len(m))}
	for id, v := range m {
		t.volumes[id] = v
	}
	return t
}

// Get returns the volume for id, or Default when there is no entry.
func (t *Table) Get(id Identifier) float32 {
	if v, ok := t.volumes[id]; ok {
		return v
	}
	return Default
}

// Lookup returns the stored volume for id and whether an entry exists.
func (t *Table) Lookup(id Identifier) (float32, bool) {
	v, ok := t.volumes[id]
	return v, ok
}

// Set clamps v and stores it under id. It reports whether the stored value
// changed; an absent entry always counts as a change.
func (t *Table) Set(id Identifier, v float32) bool {
	v = Clamp(v)
	if prev, ok := t.volumes[id]; ok && same(prev, v) {
		return false
	}
	t.volumes[id] = v
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.volumes) }

// IDs returns all identifiers in sorted order.
func (t *Table) IDs() []Identifier {
	ids := make([]Identifier, 0, len(t.volumes))
	for id := range t.volumes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Entries returns all entries sorted by identifier.
func (t *Table) Entries() []Entry {
	ids := t.IDs()
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{ID: id, Volume: t.volumes[id]}
	}
	return out
}

// Map returns a copy of the table contents.
func (t *Table) Map() map[Identifier]float32 {
	out := make(map[Identifier]float32, len(t.volumes))
	for id, v := range t.volumes {
		out[id] = v
	}
	return out
}

// Clone returns an independent copy of t.
func (t *Table) Clone() *Table {
	return TableFrom(t.volumes)
}

// Equal reports whether both tables hold the same identifiers with
// volumes equal within tolerance.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for id, v := range t.volumes {
		ov, ok := o.volumes[id]
		if !ok || !same(v, ov) {
			return false
		}
	}
	return true
}

// Reconcile inserts Default for every known identifier missing from the
// table and clamps every stored value outside [Min, Max]. Entries whose
// identifier is not in known are kept as they are. It reports whether
// anything was modified.
func (t *Table) Reconcile(known []Identifier) bool {
	modified := false
	for _, id := range known {
		if _, ok := t.volumes[id]; !ok {
			t.volumes[id] = Default
			modified = true
		}
	}
	for id, v := range t.volumes {
		if c := Clamp(v); c != v {
			t.volumes[id] = c
			modified = true
		}
	}
	return modified
}
