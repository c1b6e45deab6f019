package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Counter is a monotonically increasing value. A nil *Counter is a no-op.
type Counter struct {
	name string
	help string
	v    atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() {
	if c != nil {
		c.v.Add(1)
	}
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	if c == nil {
		return 0
	}
	return c.v.Load()
}

type gauge struct {
	name string
	help string
	fn   func() float64
}

// Metrics is the set of counters exported by the daemon.
type Metrics struct {
	Loads          *Counter
	ReloadsMerged  *Counter
	Saves          *Counter
	SaveFailures   *Counter
	Recoveries     *Counter
	Resolves       *Counter
	ResolveMisses  *Counter

	mu       sync.Mutex
	counters []*Counter
	gauges   []gauge
}

// New returns a Metrics with every counter at zero.
func New() *Metrics {
	m := &Metrics{}
	m.Loads = m.counter("volumectl_loads_total", "Volume table loads, including the initial one.")
	m.ReloadsMerged = m.counter("volumectl_reloads_merged_total", "Reload triggers merged into an already pending reload.")
	m.Saves = m.counter("volumectl_saves_total", "Successful writes of the volume file.")
	m.SaveFailures = m.counter("volumectl_save_failures_total", "Failed writes of the volume file.")
	m.Recoveries = m.counter("volumectl_corrupt_recoveries_total", "Malformed volume files replaced with defaults.")
	m.Resolves = m.counter("volumectl_resolves_total", "Multiplier lookups from the playback path.")
	m.ResolveMisses = m.counter("volumectl_resolve_misses_total", "Multiplier lookups for unregistered handles.")
	return m
}

func (m *Metrics) counter(name, help string) *Counter {
	c := &Counter{name: name, help: help}
	m.counters = append(m.counters, c)
	return c
}

// Gauge registers a value sampled at collection time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, gauge{name: name, help: help, fn: fn})
}

// Families returns the current values as metric families sorted by name.
func (m *Metrics) Families() []*dto.MetricFamily {
	m.mu.Lock()
	gauges := append([]gauge(nil), m.gauges...)
	m.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(m.counters)+len(gauges))
	for _, c := range m.counters {
		out = append(out, family(c.name, c.help, dto.MetricType_COUNTER, float64(c.Value())))
	}
	for _, g := range gauges {
		out = append(out, family(g.name, g.help, dto.MetricType_GAUGE, g.fn()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// ServeHTTP writes all families in the text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range m.Families() {
		if err := enc.Encode(mf); err != nil {
			http.Error(w, fmt.Sprintf("encode %s: %v", mf.GetName(), err), http.StatusInternalServerError)
			return
		}
	}
}

func family(name, help string, typ dto.MetricType, v float64) *dto.MetricFamily {
	m := &dto.Metric{}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: ptr(v)}
	default:
		m.Gauge = &dto.Gauge{Value: ptr(v)}
	}
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   typ.Enum(),
		Metric: []*dto.Metric{m},
	}
}

func ptr[T any](v T) *T { return &v }
