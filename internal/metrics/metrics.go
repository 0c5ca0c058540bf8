// Package metrics exposes Prometheus counters for cache, relay and cascade activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studio"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder owns the studio counters. A nil Recorder records nothing.
type Recorder struct {
	cacheHits     *prometheus.CounterVec
	cacheFetches  *prometheus.CounterVec
	relayOutcomes *prometheus.CounterVec
	cascadeSteps  *prometheus.CounterVec
}

// New creates the counters and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Loads served from an already loaded collection.",
		}, []string{"collection"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Remote fetches issued to fill a collection.",
		}, []string{"collection"}),
		relayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mutations_total",
			Help:      "Relayed mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		cascadeSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "steps_total",
			Help:      "Cascading delete steps by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.cacheHits, r.cacheFetches, r.relayOutcomes, r.cascadeSteps)
	}
	return r
}

// CacheHit implements cache.Observer.
func (r *Recorder) CacheHit(collection string) {
	if r == nil {
		return
	}
	r.cacheHits.WithLabelValues(collection).Inc()
}

// CacheFetch implements cache.Observer.
func (r *Recorder) CacheFetch(collection string) {
	if r == nil {
		return
	}
	r.cacheFetches.WithLabelValues(collection).Inc()
}

// Mutation counts one relayed mutation.
func (r *Recorder) Mutation(operation string, err error) {
	if r == nil {
		return
	}
	r.relayOutcomes.WithLabelValues(operation, outcome(err)).Inc()
}

// CascadeStep counts one executed cascade step.
func (r *Recorder) CascadeStep(kind string, err error) {
	if r == nil {
		return
	}
	r.cascadeSteps.WithLabelValues(kind, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
