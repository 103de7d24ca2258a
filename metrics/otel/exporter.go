package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/credcore"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// InstrumentPrefix is prepended to every counter family name.
const InstrumentPrefix = "credcore."

type metricsSource interface {
	MetricsSnapshot() credcore.MetricsSnapshot
	AuditDropped() uint64
}

type observedSeries struct {
	id         credcore.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.ObserveOption
}

// Exporter keeps the instrument registration alive until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	series       []observedSeries
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments for engine on meter.
func NewExporter(meter metric.Meter, engine *credcore.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource is NewExporter over any snapshot source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	descriptors := credcore.MetricDescriptors()
	exporter := &Exporter{
		source: source,
		series: make([]observedSeries, 0, len(descriptors)),
	}

	families := make(map[string]metric.Int64ObservableCounter)
	observables := make([]metric.Observable, 0, len(descriptors)+1)
	for _, d := range descriptors {
		ins, ok := families[d.Name]
		if !ok {
			name := InstrumentPrefix + d.Name
			var err error
			ins, err = meter.Int64ObservableCounter(name, metric.WithDescription(d.Help))
			if err != nil {
				return nil, fmt.Errorf("create observable counter %s: %w", name, err)
			}
			families[d.Name] = ins
			observables = append(observables, ins)
		}

		kvs := make([]attribute.KeyValue, 0, len(d.Labels))
		for k, v := range d.Labels {
			kvs = append(kvs, attribute.String(k, v))
		}
		exporter.series = append(exporter.series, observedSeries{
			id:         d.ID,
			instrument: ins,
			attrs:      metric.WithAttributeSet(attribute.NewSet(kvs...)),
		})
	}

	auditDropped, err := meter.Int64ObservableCounter(
		InstrumentPrefix+"audit.dropped",
		metric.WithDescription("Audit events dropped on a full dispatcher buffer."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, s := range exporter.series {
			observer.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the callback. It is safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
