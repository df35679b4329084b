// Package prom exports slab metrics to Prometheus.
package prom

import (
	"github.com/IvanBrykalov/shardslab/slab"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements slab.Metrics and exports Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	inserts   prometheus.Counter
	lookups   *prometheus.CounterVec
	reclaims  prometheus.Counter
	busy      prometheus.Counter
	exhausted prometheus.Counter
	pages     prometheus.Counter
	slots     prometheus.Counter

	hit, miss prometheus.Counter // pre-resolved lookups children
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// Registering two adapters with the same names on one registry panics;
// use constLabels (e.g. {"slab": "spans"}) or distinct subsystems.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		inserts: counter("inserts_total", "Values inserted"),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "lookups_total",
				Help:        "Get calls by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		reclaims:  counter("reclaims_total", "Slots reclaimed and returned to a free list"),
		busy:      counter("take_busy_total", "Take calls refused because the value was borrowed"),
		exhausted: counter("exhausted_total", "Inserts that failed because every shard was full"),
		pages:     counter("pages_allocated_total", "Pages allocated"),
		slots:     counter("allocated_slots_total", "Slots in newly allocated pages"),
	}
	// Resolve label children once; WithLabelValues hashes on every call.
	a.hit = a.lookups.WithLabelValues("hit")
	a.miss = a.lookups.WithLabelValues("miss")

	reg.MustRegister(a.inserts, a.lookups, a.reclaims, a.busy, a.exhausted, a.pages, a.slots)
	return a
}

// Insert increments the insert counter.
func (a *Adapter) Insert() { a.inserts.Inc() }

// Hit counts a successful Get.
func (a *Adapter) Hit() { a.hit.Inc() }

// Miss counts a Get that found nothing.
func (a *Adapter) Miss() { a.miss.Inc() }

// Reclaim increments the reclaim counter.
func (a *Adapter) Reclaim() { a.reclaims.Inc() }

// Busy increments the refused-Take counter.
func (a *Adapter) Busy() { a.busy.Inc() }

// Grow records a page allocation and its slots.
func (a *Adapter) Grow(slots int) {
	a.pages.Inc()
	a.slots.Add(float64(slots))
}

// Exhausted increments the exhaustion counter.
func (a *Adapter) Exhausted() { a.exhausted.Inc() }

// Compile-time check: ensure Adapter implements slab.Metrics.
var _ slab.Metrics = (*Adapter)(nil)
