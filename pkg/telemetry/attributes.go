// Copyright 2026 © The Taskbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires slog, OpenTelemetry tracing and metrics for the
// task engine.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys.
const (
	AttrTaskID      = "taskbridge.task.id"
	AttrTaskStatus  = "taskbridge.task.status"
	AttrTaskSkill   = "taskbridge.task.skill"
	AttrTurnAttempt = "taskbridge.turn.attempt"
	AttrTurnMode    = "taskbridge.turn.mode" // sync, stream
	AttrTurnPath    = "taskbridge.turn.path" // precheck, extracted, model, bridge

	AttrToolName    = "taskbridge.tool.name"
	AttrToolSuccess = "taskbridge.tool.success"
	AttrToolSource  = "taskbridge.tool.source" // remote, local

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// TaskAttributes returns the attributes shared by every turn span.
func TaskAttributes(taskID, mode string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTurnMode, mode),
	}
	if attempt > 0 {
		attrs = append(attrs, attribute.Int(AttrTurnAttempt, attempt))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name, source string, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolSource, source),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// LLMAttributes returns attributes for a model call span.
func LLMAttributes(provider, model string, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}

// Truncate shortens s for use as a span attribute.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
