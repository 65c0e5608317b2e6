// Package metrics provides the ambient metrics abstraction (Provider,
// Counter/Gauge/Histogram) used by every component, plus the async
// collector that is C6 of the spec. Modeled on the teacher's
// telemetry/metrics Provider interface so that the Prometheus and OTel
// backends are interchangeable without touching call sites.
package metrics

import "context"

// Counter is a monotonically increasing value.
type Counter interface {
	Inc(delta float64, labels ...string)
}

// Gauge can move up or down.
type Gauge interface {
	Set(value float64, labels ...string)
	Add(delta float64, labels ...string)
}

// Histogram records observations into buckets.
type Histogram interface {
	Observe(value float64, labels ...string)
}

// Timer measures elapsed time since creation.
type Timer interface {
	ObserveDuration(labels ...string)
}

// Provider is the top-level metrics backend abstraction.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(h HistogramOpts) func() Timer
	Health(ctx context.Context) error
}

// CommonOpts is embedded in every metric's option struct.
type CommonOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Labels    []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}
type noopTimer struct{}

// NewNoopProvider returns a Provider that discards everything, used as
// the default when no backend is configured and in unit tests.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter        { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge               { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram   { return noopHistogram{} }
func (noopProvider) NewTimer(HistogramOpts) func() Timer {
	return func() Timer { return noopTimer{} }
}
func (noopProvider) Health(context.Context) error { return nil }

func (noopCounter) Inc(float64, ...string)    {}
func (noopGauge) Set(float64, ...string)      {}
func (noopGauge) Add(float64, ...string)      {}
func (noopHistogram) Observe(float64, ...string) {}
func (noopTimer) ObserveDuration(...string)   {}
