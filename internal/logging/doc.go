// Package logging wraps zap with the conventions hapticd logs by.
//
// A Logger adds correlation fields from the context to every entry:
// OpenTelemetry trace and span ids, the HTTP request id and the id of the
// notification event being resolved.
//
//	ctx = logging.WithEventID(ctx, id)
//	logger.Info(ctx, "resolved", zap.String("package", pkg))
//
// Output goes to stdout (JSON or console) and optionally to an
// OpenTelemetry log provider through the otelzap bridge. Fields named like
// credentials and values that look like bearer tokens or API keys are
// redacted before encoding. Below-error entries can be sampled; errors never
// are.
//
// Components that only need a *zap.Logger get one from Underlying.
package logging
