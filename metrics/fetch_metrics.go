package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// FetchMetrics records the work done by the deferred fetch stage. A nil *FetchMetrics is valid and records nothing.
type FetchMetrics struct {
	referencesTotal   prometheus.Counter
	distinctDocsTotal prometheus.Counter
	dedupedTotal      prometheus.Counter
	fetchRequests     *prometheus.CounterVec
	fetchLatency      prometheus.Histogram
	stagesTotal       *prometheus.CounterVec
}

func NewFetchMetrics(registerer prometheus.Registerer) *FetchMetrics {
	factory := promauto.With(registerer)
	return &FetchMetrics{
		referencesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfetch_references_total",
			Help: "Document references produced by the scatter phase",
		}),
		distinctDocsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfetch_distinct_docs_total",
			Help: "Distinct documents registered for fetch",
		}),
		dedupedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "docfetch_deduplicated_references_total",
			Help: "References served by a document that was already registered",
		}),
		fetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docfetch_reader_fetches_total",
			Help: "Per reader fetch requests by outcome",
		}, []string{"outcome"}),
		fetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docfetch_reader_fetch_duration_seconds",
			Help:    "Latency of per reader fetch requests",
			Buckets: prometheus.DefBuckets,
		}),
		stagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docfetch_stages_total",
			Help: "Fetch stages by outcome",
		}, []string{"outcome"}),
	}
}

var defaultFetchMetrics *FetchMetrics
var defaultOnce sync.Once

// DefaultFetchMetrics returns metrics registered with the default prometheus registerer. They are created once per
// process as registering the same names twice panics.
func DefaultFetchMetrics() *FetchMetrics {
	defaultOnce.Do(func() {
		defaultFetchMetrics = NewFetchMetrics(prometheus.DefaultRegisterer)
	})
	return defaultFetchMetrics
}

func (f *FetchMetrics) ObserveRegistration(references int, distinctDocs int) {
	if f == nil {
		return
	}
	f.referencesTotal.Add(float64(references))
	f.distinctDocsTotal.Add(float64(distinctDocs))
	if references > distinctDocs {
		f.dedupedTotal.Add(float64(references - distinctDocs))
	}
}

func (f *FetchMetrics) ObserveFetch(duration time.Duration, err error) {
	if f == nil {
		return
	}
	f.fetchLatency.Observe(duration.Seconds())
	f.fetchRequests.WithLabelValues(outcome(err)).Inc()
}

func (f *FetchMetrics) ObserveStage(err error) {
	if f == nil {
		return
	}
	f.stagesTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (f *FetchMetrics) FetchRequests() *prometheus.CounterVec {
	return f.fetchRequests
}

func (f *FetchMetrics) Stages() *prometheus.CounterVec {
	return f.stagesTotal
}
