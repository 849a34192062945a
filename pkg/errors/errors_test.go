// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	e := New(CodeRemoteFailure, "tool endpoint unreachable", cause)

	if e.Code != CodeRemoteFailure {
		t.Errorf("expected CodeRemoteFailure, got %v", e.Code)
	}
	if e.Message != "tool endpoint unreachable" {
		t.Errorf("unexpected message %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Errorf("expected errors.Is to reach the cause")
	}
	if e.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", e.StatusCode)
	}
}

func TestErrorString(t *testing.T) {
	if got := NotFound("task %q not found", "t1").Error(); got != `[NOT_FOUND] task "t1" not found` {
		t.Errorf("unexpected string %q", got)
	}
	e := New(CodeLLMError, "chat failed", errors.New("boom"))
	if got := e.Error(); got != "[LLM_ERROR] chat failed: boom" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestWithContextAndRecoverable(t *testing.T) {
	e := New(CodeTimeout, "invoke timed out", nil).
		WithContext("tool", "get_weather").
		WithRecoverable(true)

	if e.Context["tool"] != "get_weather" {
		t.Errorf("expected context tool")
	}
	if !e.Recoverable {
		t.Errorf("expected recoverable")
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	inner := NotFound("tool %q not found", "x")
	outer := New(CodeExhaustedRetries, "turn failed", fmt.Errorf("attempt 3: %w", inner))

	if !HasCode(outer, CodeExhaustedRetries) {
		t.Errorf("expected outer code")
	}
	if !IsNotFound(outer) {
		t.Errorf("expected NOT_FOUND in chain")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Errorf("plain errors carry no code")
	}
	if HasCode(nil, CodeInternal) {
		t.Errorf("nil carries no code")
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{InvalidInput("x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", InvalidInput("x")), http.StatusBadRequest},
		{New(CodeInternal, "x", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	e := New(CodeRemoteFailure, "execute failed", errors.New("503")).WithContext("tool", "calculate")
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != "REMOTE_FAILURE" || decoded["cause"] != "503" {
		t.Errorf("unexpected payload %s", data)
	}
}
