package logging

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Options struct {
	ServiceName string
	// StdoutTraces and StdoutMetrics print spans and metric snapshots to
	// stdout. Logs always go to stdout.
	StdoutTraces   bool
	StdoutMetrics  bool
	MetricInterval time.Duration
}

// SetupOTelSDK installs the global propagator plus the tracer, meter and
// logger providers. The returned shutdown func flushes and stops them all;
// call it once.
func SetupOTelSDK(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}
	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	if opts.ServiceName == "" {
		opts.ServiceName = instrumentationName
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = time.Minute
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", opts.ServiceName)))
	if err != nil {
		return shutdown, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.StdoutTraces {
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			handleErr(err)
			return shutdown, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(time.Second)))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if opts.StdoutMetrics {
		metricExporter, err := stdoutmetric.New()
		if err != nil {
			handleErr(err)
			return shutdown, err
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(opts.MetricInterval))))
	}
	meterProvider := sdkmetric.NewMeterProvider(mpOpts...)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	logExporter, err := stdoutlog.New()
	if err != nil {
		handleErr(err)
		return shutdown, err
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter, sdklog.WithExportInterval(time.Second))),
	)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}
