// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/jllopis/taskbridge/pkg/errors"
)

func TestTurnMetricsRecord(t *testing.T) {
	m, err := NewTurnMetrics()
	if err != nil {
		t.Fatalf("NewTurnMetrics failed: %v", err)
	}
	ctx := context.Background()

	m.RecordTurn(ctx, "sync", "completed", 120*time.Millisecond)
	m.RecordRetry(ctx, 1)
	m.RecordToolCall(ctx, "get_weather", "remote", true)
	m.RecordError(ctx, errors.New(errors.CodeRemoteFailure, "boom", nil), "tool")
	m.RecordError(ctx, stderrors.New("plain"), "tool")
	m.RecordError(ctx, nil, "tool")
}

func TestTurnMetricsNilSafe(t *testing.T) {
	var m *TurnMetrics
	ctx := context.Background()
	m.RecordTurn(ctx, "stream", "failed", time.Second)
	m.RecordRetry(ctx, 2)
	m.RecordToolCall(ctx, "calculate", "local", false)
	m.RecordError(ctx, stderrors.New("x"), "llm")
}
