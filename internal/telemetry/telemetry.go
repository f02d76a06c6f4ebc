// Package telemetry exports OpenTelemetry metrics for the relay.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/soyeahso/liverelay/internal/config"
	"github.com/soyeahso/liverelay/internal/version"
)

// Metrics holds the relay's instruments. A nil *Metrics is valid and
// records nothing, so callers never need to branch on telemetry being
// enabled.
type Metrics struct {
	sessionsActive  metric.Int64UpDownCounter
	chunksForwarded metric.Int64Counter
	toolCalls       metric.Int64Counter
	toolErrors      metric.Int64Counter
	interruptions   metric.Int64Counter
}

// Init sets up the meter provider with a periodic stdout exporter and
// returns the relay's instruments plus a shutdown function.
func Init(ctx context.Context, cfg config.TelemetryConfig) (*Metrics, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("liverelay"),
			semconv.ServiceVersion(version.Version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating resource: %w", err)
	}

	var w io.Writer = os.Stdout
	var fileCloser io.Closer
	if cfg.MetricsFile != "" {
		f := &lumberjack.Logger{
			Filename:   cfg.MetricsFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		w = f
		fileCloser = f
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter("liverelay"))
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mp.Shutdown(ctx)
		if fileCloser != nil {
			fileCloser.Close()
		}
	}
	return m, shutdown, nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.sessionsActive, err = meter.Int64UpDownCounter("liverelay.sessions.active"); err != nil {
		return nil, err
	}
	if m.chunksForwarded, err = meter.Int64Counter("liverelay.chunks.forwarded"); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter("liverelay.tool.calls"); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter("liverelay.tool.errors"); err != nil {
		return nil, err
	}
	if m.interruptions, err = meter.Int64Counter("liverelay.interruptions"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}

func (m *Metrics) ChunkForwarded(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunksForwarded.Add(ctx, 1)
}

func (m *Metrics) ToolCall(ctx context.Context) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1)
}

func (m *Metrics) ToolError(ctx context.Context) {
	if m == nil {
		return
	}
	m.toolErrors.Add(ctx, 1)
}

func (m *Metrics) Interruption(ctx context.Context) {
	if m == nil {
		return
	}
	m.interruptions.Add(ctx, 1)
}
