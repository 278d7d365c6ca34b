// Package telemetry sets up OpenTelemetry tracing and metrics for
// vectorstored.
//
// New installs global tracer and meter providers that export over OTLP
// (gRPC or HTTP/protobuf). Components obtain instruments through
// otel.Tracer and otel.Meter, so a disabled or degraded Telemetry leaves
// them with no-op implementations rather than failing startup.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
