package dds

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors of the safety layer. They are always updated and
// only exported once RegisterMetrics is called.
var (
	samplesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "writer",
		Name:      "samples_total",
		Help:      "Total number of samples written, disposed or unregistered",
	}, []string{"topic", "op"}) // op: write, dispose, write_dispose, unregister

	writeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "writer",
		Name:      "errors_total",
		Help:      "Total number of failed writer operations",
	}, []string{"topic", "kind"})

	samplesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "reader",
		Name:      "samples_total",
		Help:      "Total number of samples returned by read or take",
	}, []string{"topic", "op"}) // op: read, take

	listenerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "listener",
		Name:      "invocations_total",
		Help:      "Total number of listener callbacks invoked",
	}, []string{"event"})

	listenerPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "listener",
		Name:      "panics_total",
		Help:      "Total number of listener callbacks that panicked",
	}, []string{"event"})

	asyncWakes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dds",
		Subsystem: "async",
		Name:      "wakes_total",
		Help:      "Total number of suspended async reads woken by data",
	})

	liveEntities = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dds",
		Subsystem: "entity",
		Name:      "live",
		Help:      "Number of live entities",
	}, []string{"kind"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		samplesWritten, writeErrors, samplesRead,
		listenerCalls, listenerPanics, asyncWakes, liveEntities,
	}
}

// RegisterMetrics registers the package collectors with reg. Registering
// the same collectors twice on one registry is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// errorKindLabel is the metric label of err.
func errorKindLabel(err error) string {
	var de DdsError
	if errors.As(err, &de) {
		return de.Kind().String()
	}
	return "other"
}
