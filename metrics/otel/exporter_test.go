package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/password"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[credcore.MetricID]uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() credcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := credcore.MetricsSnapshot{Counters: make(map[credcore.MetricID]uint64, len(f.counters))}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return rm
}

// point returns the value of the data point on instrument name whose
// attributes equal attrs.
func point(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		counters: map[credcore.MetricID]uint64{
			credcore.MetricLoginSuccess:    3,
			credcore.MetricResetCodeIssued: 2,
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("credcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	rm := collect(t, reader)
	if v, ok := point(rm, "credcore.logins", attribute.String("result", "success")); !ok || v != 3 {
		t.Fatalf("logins{result=success} = %d, %v", v, ok)
	}
	if v, ok := point(rm, "credcore.logins", attribute.String("result", "locked")); !ok || v != 0 {
		t.Fatalf("logins{result=locked} = %d, %v", v, ok)
	}
	codeAttrs := []attribute.KeyValue{attribute.String("purpose", "password_reset"), attribute.String("result", "issued")}
	if v, ok := point(rm, "credcore.codes", codeAttrs...); !ok || v != 2 {
		t.Fatalf("codes{password_reset,issued} = %d, %v", v, ok)
	}
	if v, ok := point(rm, "credcore.audit.dropped"); !ok || v != 1 {
		t.Fatalf("audit.dropped = %d, %v", v, ok)
	}
}

func TestExporterCoversEveryMetricID(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[credcore.MetricID]uint64{}}
	for _, d := range credcore.MetricDescriptors() {
		src.counters[d.ID] = uint64(d.ID) + 1
	}

	exp, err := NewExporterFromSource(provider.Meter("credcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	rm := collect(t, reader)
	for _, d := range credcore.MetricDescriptors() {
		attrs := make([]attribute.KeyValue, 0, len(d.Labels))
		for k, v := range d.Labels {
			attrs = append(attrs, attribute.String(k, v))
		}
		v, ok := point(rm, InstrumentPrefix+d.Name, attrs...)
		if !ok || v != int64(d.ID)+1 {
			t.Fatalf("series %d (%s %v) = %d, %v", d.ID, d.Name, d.Labels, v, ok)
		}
	}
}

func TestExporterReadsEngine(t *testing.T) {
	cfg := credcore.DefaultConfig()
	cfg.Password.Hash = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Lockout.FailureDelay = 0
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	engine, err := credcore.New().WithConfig(cfg).WithStore(credcore.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	reader, provider := newReader()
	exp, err := NewExporter(provider.Meter("credcore-test"), engine)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	ctx := context.Background()
	if _, err := engine.Register(ctx, "Alice", "a@x.com", "Abc123!@#"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_, _ = engine.Login(ctx, "a@x.com", "wrong")

	rm := collect(t, reader)
	if v, _ := point(rm, "credcore.registrations", attribute.String("result", "created")); v != 1 {
		t.Fatalf("registrations{created} = %d", v)
	}
	if v, _ := point(rm, "credcore.logins", attribute.String("result", "invalid")); v != 1 {
		t.Fatalf("logins{invalid} = %d", v)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("credcore-test")

	if _, err := NewExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	var exp *Exporter
	if err := exp.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{counters: map[credcore.MetricID]uint64{credcore.MetricLoginSuccess: 1}}

	exp, err := NewExporterFromSource(provider.Meter("credcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[credcore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
