package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "debug", Format: "console", OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)
	require.NoError(t, cfg.Validate())

	_, err = FromAppConfig(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Output.Stdout = false
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"(unclosed"}
	assert.Error(t, cfg.Validate())
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithVectorStoreID(ctx, "vs_abc")
	ctx = WithFileID(ctx, "file_xyz")

	tl.Info(ctx, "ingestion completed", zap.Int("chunks", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "ingestion completed")
	tl.AssertField(t, "ingestion completed", "vector_store.id", "vs_abc")
	tl.AssertField(t, "ingestion completed", "file.id", "file_xyz")
	tl.AssertField(t, "ingestion completed", "request.id", "req-1")
	tl.AssertField(t, "ingestion completed", "trace_id", traceID.String())
}

func TestLogger_TraceLevel(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "chunk embedded")
	tl.AssertLogged(t, TraceLevel, "chunk embedded")
	tl.AssertNotLogged(t, zapcore.DebugLevel, "chunk embedded")
}

func TestContext_LoggerRoundTrip(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "calling model"}, []zapcore.Field{
		zap.String("api_key", "sk-live-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "bge-base"),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"model":"bge-base"`)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("abcdef"))
	assert.Equal(t, "[REDACTED:6]", f.String)
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    time.Minute,
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
		},
	})
	logger := zap.New(sampled)

	for i := 0; i < 10; i++ {
		logger.Info("repeated")
		logger.Error("failure")
	}

	assert.Equal(t, 2, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 10, observed.FilterMessage("failure").Len())
}
