// Package telemetry sets up OpenTelemetry tracing and metrics for hapticd.
//
// Spans and OTLP metrics go to a collector over gRPC or HTTP/protobuf.
// Prometheus counters served on /metrics are registered separately by the
// packages that own them; this package only covers the OTel side.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporter setup failures leave the instance degraded with no-op providers.
// They never stop the daemon.
//
// Tests use NewTestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	eng := engine.New(store, act, engine.WithTracer(tt.Tracer("test")))
//	...
//	tt.AssertSpanExists(t, "engine.resolve")
package telemetry
