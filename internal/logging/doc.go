// Package logging wraps zap with context-aware methods for vectorstored.
//
// A Logger writes to stdout through a redacting encoder and, when an
// OpenTelemetry LoggerProvider is supplied, to the otelzap bridge. Every
// entry picks up correlation fields from its context: trace_id and span_id
// from the active span, plus request.id, vector_store.id and file.id when
// set with the With* helpers.
//
//	ctx = logging.WithVectorStoreID(ctx, vs.ID)
//	ctx = logging.WithFileID(ctx, file.ID)
//	logger.Info(ctx, "ingestion completed", zap.Int("chunks", n))
//
// Levels below Error are sampled per level; Error and above never are.
// Tests use NewTestLogger, which records entries in memory.
package logging
