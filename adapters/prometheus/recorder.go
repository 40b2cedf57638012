// Package prometheus exports the component metrics through a Prometheus
// registry.
package prometheus

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-redirects/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBuckets covers request latencies in milliseconds.
var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder implements core.MetricsRecorder. Vectors are registered on first
// use; their label set is fixed by the tags of that first observation and
// later tags outside the set are dropped.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counterVec
	histograms map[string]*histogramVec
}

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	recorder := &Recorder{
		registerer: registerer,
		buckets:    DefaultBuckets,
		counters:   map[string]*counterVec{},
		histograms: map[string]*histogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	counter, err := r.counter(name, tags)
	if err != nil {
		return
	}
	counter.vec.With(labelValues(counter.labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	histogram, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	histogram.vec.With(labelValues(histogram.labels, tags)).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metricName := r.metricName(name)
	if existing, ok := r.counters[metricName]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName,
		Help: "Counter " + name,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		return nil, err
	}
	entry := &counterVec{vec: vec, labels: labels}
	r.counters[metricName] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metricName := r.metricName(name)
	if existing, ok := r.histograms[metricName]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName,
		Help:    "Histogram " + name,
		Buckets: r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		return nil, err
	}
	entry := &histogramVec{vec: vec, labels: labels}
	r.histograms[metricName] = entry
	return entry, nil
}

func (r *Recorder) metricName(name string) string {
	metricName := sanitize(name)
	if r.namespace != "" && !strings.HasPrefix(metricName, r.namespace+"_") {
		metricName = r.namespace + "_" + metricName
	}
	return metricName
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if label := sanitize(key); label != "" {
			names = append(names, label)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func labelValues(names []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(names))
	for _, name := range names {
		values[name] = ""
	}
	for key, value := range tags {
		label := sanitize(key)
		if _, ok := values[label]; ok {
			values[label] = value
		}
	}
	return values
}

// sanitize maps dotted metric names to the Prometheus charset.
func sanitize(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	b.Grow(len(value))
	for i, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
