// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"github.com/jllopis/taskbridge/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TurnMetrics records turn, retry and tool-call counters.
// A nil *TurnMetrics is valid and records nothing.
type TurnMetrics struct {
	turns     metric.Int64Counter
	retries   metric.Int64Counter
	toolCalls metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewTurnMetrics creates the instruments on the global meter provider.
func NewTurnMetrics() (*TurnMetrics, error) {
	meter := otel.Meter("taskbridge/orchestrator")

	turns, err := meter.Int64Counter(
		"taskbridge.turns.total",
		metric.WithDescription("Completed turns by final status"),
	)
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter(
		"taskbridge.turn.retries",
		metric.WithDescription("Turn attempts that failed and were retried"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter(
		"taskbridge.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome"),
	)
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter(
		"taskbridge.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"taskbridge.turn.duration",
		metric.WithDescription("Turn duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turns:     turns,
		retries:   retries,
		toolCalls: toolCalls,
		errors:    errCounter,
		duration:  duration,
	}, nil
}

// RecordTurn counts a finished turn and its duration.
func (m *TurnMetrics) RecordTurn(ctx context.Context, mode, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrTurnMode, mode),
		attribute.String(AttrTaskStatus, status),
	)
	m.turns.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordRetry counts a failed attempt that will be retried.
func (m *TurnMetrics) RecordRetry(ctx context.Context, attempt int) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int(AttrTurnAttempt, attempt)))
}

// RecordToolCall counts a tool invocation.
func (m *TurnMetrics) RecordToolCall(ctx context.Context, name, source string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(ToolCallAttributes(name, source, success)...))
}

// RecordError counts err under its code; untyped errors count as UNKNOWN.
func (m *TurnMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code := "UNKNOWN"
	recoverable := "unknown"
	if e := errors.As(err); e != nil {
		code = string(e.Code)
		recoverable = "false"
		if e.Recoverable {
			recoverable = "true"
		}
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
