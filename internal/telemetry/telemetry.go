// Package telemetry installs the OpenTelemetry meter provider and serves
// its Prometheus exposition.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Runtime holds the meter provider and, when enabled, the metrics server.
type Runtime struct {
	Provider *sdkmetric.MeterProvider
	Handler  http.Handler
	Addr     string

	server *http.Server
	log    *slog.Logger
}

// Setup builds a meter provider exporting to a private Prometheus registry
// and installs it as the global provider.
func Setup(serviceName, version string, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
			attribute.String("murmur.component", "recognizer"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		log.Warn("failed to initialize prometheus exporter", "error", err.Error())
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(provider)
		return &Runtime{Provider: provider, log: log}, nil
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &Runtime{
		Provider: provider,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		log:      log,
	}, nil
}

// Meter returns a meter from this runtime's provider.
func (r *Runtime) Meter(name string) metric.Meter {
	return r.Provider.Meter(name)
}

// Serve exposes /metrics on addr in the background. The bound address is
// recorded in Addr.
func (r *Runtime) Serve(addr string) error {
	if r.Handler == nil {
		return errors.New("prometheus exporter unavailable")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler)
	r.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	r.Addr = listener.Addr().String()

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("metrics server failed", "error", err.Error())
		}
	}()
	r.log.Info("metrics endpoint listening", "addr", r.Addr)
	return nil
}

// Shutdown stops the metrics server and flushes the provider.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
