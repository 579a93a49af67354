package coverage

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter mirrors a batch's coverage counters into Prometheus metrics
// and optionally serves them over HTTP. There is no external cluster to
// query here, so the batch run itself becomes the thing being scraped,
// useful for watching a long nightly batch progress in Grafana rather
// than parsing log lines.
type Exporter struct {
	registry *prometheus.Registry

	faultPoints       *prometheus.GaugeVec
	invariantExecuted *prometheus.GaugeVec
	viewChanges       prometheus.Gauge
	repairs           prometheus.Gauge
	stateTuplesSeen   prometheus.Gauge
}

// NewExporter constructs an exporter with its own registry, so multiple
// exporters (e.g. one per worker, later merged) never collide.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()

	e := &Exporter{
		registry: reg,
		faultPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "viewharness_fault_points_hit_total",
			Help: "Number of times each fault point has been hit in this batch.",
		}, []string{"fault_point"}),
		invariantExecuted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "viewharness_invariant_executions_total",
			Help: "Number of times each invariant checker has run in this batch.",
		}, []string{"invariant"}),
		viewChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewharness_view_changes_total",
			Help: "Number of view changes observed in this batch.",
		}),
		repairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewharness_repairs_total",
			Help: "Number of repairs observed in this batch.",
		}),
		stateTuplesSeen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewharness_state_tuples_seen",
			Help: "Number of unique (view, op, commit) tuples observed in this batch.",
		}),
	}

	reg.MustRegister(e.faultPoints, e.invariantExecuted, e.viewChanges, e.repairs, e.stateTuplesSeen)
	return e
}

// Update pushes the latest counter values from c into the exporter's
// gauges, iterating in sorted key order so repeated scrapes of an
// unchanged batch are byte-identical. Takes a Snapshot first so it can
// safely be called against a Counters a batch is still merging into.
func (e *Exporter) Update(c *Counters) {
	cp := c.Snapshot()
	for _, name := range cp.SortedFaultPointNames() {
		e.faultPoints.WithLabelValues(name).Set(float64(cp.FaultPoints[name]))
	}
	for _, name := range cp.SortedInvariantNames() {
		e.invariantExecuted.WithLabelValues(name).Set(float64(cp.InvariantExecuted[name]))
	}
	e.viewChanges.Set(float64(cp.ViewChanges))
	e.repairs.Set(float64(cp.Repairs))
	e.stateTuplesSeen.Set(float64(len(cp.StateTuples)))
}

// Handler returns the HTTP handler serving this exporter's registry in
// the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
