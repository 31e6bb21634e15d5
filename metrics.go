package flowkernel

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements prometheus.Collector for the containers it is attached to.
// It exposes:
//
//	<ns>_modules_added_total
//	<ns>_modules_removed_total
//	<ns>_module_crashes_total{prototype}
//	<ns>_connection_events_total{event}
//	<ns>_modules{container,state}
//	<ns>_progress_percent{container}
//	<ns>_progress_pending{container}
//
// Counters are driven by container notifiers; gauges are computed on scrape.
type Metrics struct {
	added       prometheus.Counter
	removed     prometheus.Counter
	crashes     *prometheus.CounterVec
	connections *prometheus.CounterVec

	modulesDesc *prometheus.Desc
	percentDesc *prometheus.Desc
	pendingDesc *prometheus.Desc

	mu         sync.RWMutex
	containers []*Container
}

// NewMetrics creates the collector. namespace defaults to "flowkernel".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flowkernel"
	}
	return &Metrics{
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_added_total",
			Help:      "Modules added to a container (cumulative)",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_removed_total",
			Help:      "Modules removed from a container (cumulative)",
		}),
		crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_crashes_total",
			Help:      "Module bodies that crashed (cumulative)",
		}, []string{"prototype"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "Connections established and closed (cumulative)",
		}, []string{"event"}),
		modulesDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_modules", namespace),
			"Modules currently associated, by lifecycle state",
			[]string{"container", "state"}, nil,
		),
		percentDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_progress_percent", namespace),
			"Last determined progress percentage of the container",
			[]string{"container"}, nil,
		),
		pendingDesc: prometheus.NewDesc(
			fmt.Sprintf("%s_progress_pending", namespace),
			"1 if work is pending in the container",
			[]string{"container"}, nil,
		),
	}
}

// Attach registers the notifiers feeding the counters and includes c in the
// scraped gauges.
func (mt *Metrics) Attach(c *Container) error {
	for _, kind := range []EventKind{EventConnectionEstablished, EventConnectionClosed} {
		label := kind.String()
		if err := c.AddConnectorNotifier(kind, func(*OutputConnector, *InputConnector) {
			mt.connections.WithLabelValues(label).Inc()
		}); err != nil {
			return err
		}
	}
	if err := c.AddModuleNotifier(EventAssociated, func(*Module) { mt.added.Inc() }); err != nil {
		return err
	}
	if err := c.AddModuleNotifier(EventRemoved, func(*Module) { mt.removed.Inc() }); err != nil {
		return err
	}
	if err := c.AddErrorNotifier(func(m *Module, _ error) {
		mt.crashes.WithLabelValues(m.Prototype()).Inc()
	}); err != nil {
		return err
	}

	mt.mu.Lock()
	mt.containers = append(mt.containers, c)
	mt.mu.Unlock()
	return nil
}

// Describe implements prometheus.Collector.
func (mt *Metrics) Describe(ch chan<- *prometheus.Desc) {
	mt.added.Describe(ch)
	mt.removed.Describe(ch)
	mt.crashes.Describe(ch)
	mt.connections.Describe(ch)
	ch <- mt.modulesDesc
	ch <- mt.percentDesc
	ch <- mt.pendingDesc
}

// Collect implements prometheus.Collector.
func (mt *Metrics) Collect(ch chan<- prometheus.Metric) {
	mt.added.Collect(ch)
	mt.removed.Collect(ch)
	mt.crashes.Collect(ch)
	mt.connections.Collect(ch)

	mt.mu.RLock()
	containers := append([]*Container(nil), mt.containers...)
	mt.mu.RUnlock()

	for _, c := range containers {
		counts := make(map[State]int)
		for _, m := range c.Modules() {
			counts[m.State()]++
		}
		for _, state := range []State{StateAssociated, StateReady, StateRunning, StateCrashed, StateStopped} {
			ch <- prometheus.MustNewConstMetric(mt.modulesDesc, prometheus.GaugeValue, float64(counts[state]), c.Name(), state.String())
		}

		reading := c.Progress().Reading()
		pending := 0.0
		if reading.Pending {
			pending = 1
		}
		ch <- prometheus.MustNewConstMetric(mt.pendingDesc, prometheus.GaugeValue, pending, c.Name())
		if reading.Determined {
			ch <- prometheus.MustNewConstMetric(mt.percentDesc, prometheus.GaugeValue, reading.Percent, c.Name())
		}
	}
}
