package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// and installs it as the global provider for the test.
func newTestTracerProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
	if got := SessionID(WithSessionID(ctx, "")); got != "" {
		t.Errorf("empty id stored: %q", got)
	}
	if got := SessionID(WithSessionID(ctx, "s-1")); got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
}

func TestStartSpan_TagsSession(t *testing.T) {
	exp := newTestTracerProvider(t)

	ctx := WithSessionID(context.Background(), "s-42")
	ctx, span := StartSpan(ctx, "respond.Resolve")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "respond.Resolve" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var found bool
	for _, kv := range spans[0].Attributes {
		if kv.Key == AttrSessionID && kv.Value.AsString() == "s-42" {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v missing session id", spans[0].Attributes)
	}
}

func TestCorrelationID_Unique(t *testing.T) {
	newTestTracerProvider(t)

	ids := make(map[string]struct{}, 100)
	for range 100 {
		ctx, span := StartSpan(context.Background(), "unique-test")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 {
			t.Fatalf("correlation ID %q is not 32 hex chars", cid)
		}
		if _, dup := ids[cid]; dup {
			t.Fatalf("duplicate correlation ID: %s", cid)
		}
		ids[cid] = struct{}{}
	}
}

func TestLogger(t *testing.T) {
	newTestTracerProvider(t)

	tests := []struct {
		name    string
		ctx     func() (context.Context, func())
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     func() (context.Context, func()) { return context.Background(), func() {} },
			notWant: []string{"trace_id", "session_id"},
		},
		{
			name: "session only",
			ctx: func() (context.Context, func()) {
				return WithSessionID(context.Background(), "s-7"), func() {}
			},
			want:    []string{"session_id=s-7"},
			notWant: []string{"trace_id"},
		},
		{
			name: "session and span",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(WithSessionID(context.Background(), "s-8"), "op")
				return ctx, func() { span.End() }
			},
			want: []string{"session_id=s-8", "trace_id=", "span_id="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx, end := tt.ctx()
			defer end()

			Logger(ctx).Info("resolved")

			logged := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(logged, w) {
					t.Errorf("log %q missing %q", logged, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(logged, w) {
					t.Errorf("log %q should not contain %q", logged, w)
				}
			}
		})
	}
}
