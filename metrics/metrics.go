package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/retread")

	if m.ListingsTotal, err = meter.Int64Counter("listings_total", metric.WithDescription("Total number of project listing responses served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create listings_total counter: %w", err)
	}
	if m.RenamedDownloadsTotal, err = meter.Int64Counter("renamed_downloads_total", metric.WithDescription("Total number of wheels renamed and served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create renamed_downloads_total counter: %w", err)
	}
	if m.ProxiedBytesTotal, err = meter.Int64Counter("proxied_bytes_total", metric.WithDescription("Total renamed wheel bytes served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create proxied_bytes_total counter: %w", err)
	}
	if m.UpstreamErrorsTotal, err = meter.Int64Counter("upstream_errors_total", metric.WithDescription("Total number of failed upstream fetches")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create upstream_errors_total counter: %w", err)
	}

	return m, nil
}

type Metrics struct {
	ListingsTotal         metric.Int64Counter
	RenamedDownloadsTotal metric.Int64Counter
	ProxiedBytesTotal     metric.Int64Counter
	UpstreamErrorsTotal   metric.Int64Counter
}

func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementListings(ctx context.Context, kind string) {
	if m.ListingsTotal == nil {
		return
	}
	m.ListingsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m Metrics) IncrementRenamedDownloads(ctx context.Context, bytes int64) {
	if m.RenamedDownloadsTotal == nil || m.ProxiedBytesTotal == nil {
		return
	}
	m.RenamedDownloadsTotal.Add(ctx, 1)
	m.ProxiedBytesTotal.Add(ctx, bytes)
}

func (m Metrics) IncrementUpstreamErrors(ctx context.Context) {
	if m.UpstreamErrorsTotal == nil {
		return
	}
	m.UpstreamErrorsTotal.Add(ctx, 1)
}
