package monitoring

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway-service/logging"
)

const instrumentationName = "payment-gateway-service"

// Instruments shared by the service, the retry controller and the gateway client.
// Attribute keys: gateway, payment_method, status, error_code, currency, operation.
var (
	PaymentCounter      metric.Int64Counter
	PaymentAmount       metric.Float64Histogram
	GatewayCallDuration metric.Float64Histogram
	GatewayRetries      metric.Int64Counter
	RateLimitRejections metric.Int64Counter
	RefundCounter       metric.Int64Counter
	HTTPServerDuration  metric.Float64Histogram
)

var promRegistry = prometheus.NewRegistry()

// Instruments bind to the global meter provider, which is a no-op until InitMeter
// installs a real one.
func init() {
	if err := registerInstruments(otel.Meter(instrumentationName)); err != nil {
		panic("monitoring: register instruments: " + err.Error())
	}
}

// NewResource describes this process to the tracing and metrics pipelines
func NewResource(ctx context.Context, serviceName, environment string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
}

// InitTracer installs a batching OTLP tracer provider as the global provider
func InitTracer(ctx context.Context, res *resource.Resource, endpoint string) (*sdktrace.TracerProvider, trace.Tracer, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logging.Info("Tracing initialized", zap.String("endpoint", endpoint))
	return tp, tp.Tracer(instrumentationName), nil
}

// InitMeter installs a meter provider exporting over OTLP and to the Prometheus
// registry served by MetricsHandler, then rebinds the instruments to it.
func InitMeter(ctx context.Context, res *resource.Resource, endpoint string) (*sdkmetric.MeterProvider, error) {
	otlpExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	promExporter, err := otelprom.New(otelprom.WithRegisterer(promRegistry))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)),
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := registerInstruments(mp.Meter(instrumentationName)); err != nil {
		return nil, err
	}

	logging.Info("Metrics initialized with OTLP and Prometheus exporters", zap.String("endpoint", endpoint))
	return mp, nil
}

// MetricsHandler exposes the Prometheus scrape endpoint
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
}

func registerInstruments(meter metric.Meter) error {
	var err error

	PaymentCounter, err = meter.Int64Counter(
		"payments_processed_total",
		metric.WithDescription("Total number of payments processed"),
	)
	if err != nil {
		return err
	}

	PaymentAmount, err = meter.Float64Histogram(
		"payment_amount",
		metric.WithDescription("Payment amounts in major currency units"),
	)
	if err != nil {
		return err
	}

	GatewayCallDuration, err = meter.Float64Histogram(
		"gateway_call_duration_seconds",
		metric.WithDescription("Duration of payment gateway calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	GatewayRetries, err = meter.Int64Counter(
		"gateway_retries_total",
		metric.WithDescription("Retried gateway attempts"),
	)
	if err != nil {
		return err
	}

	RateLimitRejections, err = meter.Int64Counter(
		"rate_limit_rejections_total",
		metric.WithDescription("Payment attempts rejected by the local rate limiter"),
	)
	if err != nil {
		return err
	}

	RefundCounter, err = meter.Int64Counter(
		"refunds_processed_total",
		metric.WithDescription("Total number of refunds processed"),
	)
	if err != nil {
		return err
	}

	HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}
