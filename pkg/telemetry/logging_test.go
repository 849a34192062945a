package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	buf.Reset()
	return rec
}

func TestLogRecordsCarryTaskAndTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newSlogHandler(&buf, "info", "json"))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithTask(ctx, "task-7")

	logger.InfoContext(ctx, "turn.started")
	rec := decodeRecord(t, &buf)
	if rec["task_id"] != "task-7" {
		t.Errorf("expected task_id task-7, got %v", rec["task_id"])
	}
	if rec["trace_id"] != sc.TraceID().String() || rec["span_id"] != sc.SpanID().String() {
		t.Errorf("unexpected trace fields %v", rec)
	}

	logger.InfoContext(ctx, "explicit", slog.String("task_id", "other"))
	if rec := decodeRecord(t, &buf); rec["task_id"] != "other" {
		t.Errorf("explicit task_id overwritten: %v", rec["task_id"])
	}

	logger.Info("no context")
	rec = decodeRecord(t, &buf)
	if _, ok := rec["task_id"]; ok {
		t.Errorf("unexpected task_id without context: %v", rec)
	}
}

func TestWithTaskIgnoresEmptyID(t *testing.T) {
	ctx := context.Background()
	if WithTask(ctx, "") != ctx {
		t.Fatal("expected context unchanged")
	}
	if got := TaskFromContext(WithTask(ctx, "t1")); got != "t1" {
		t.Fatalf("TaskFromContext = %q", got)
	}
}
