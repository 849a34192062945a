package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jllopis/taskbridge/pkg/errors"
)

// CLIError adds a user-facing hint to a typed error.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// Error returns the message followed by the hint.
func (e *CLIError) Error() string {
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap returns the typed error.
func (e *CLIError) Unwrap() error { return e.Err }

// hintFor attaches a hint matching the error code. Untyped errors are
// wrapped as internal errors.
func hintFor(err error, flags globalFlags) *CLIError {
	e := errors.As(err)
	if e == nil {
		e = errors.New(errors.CodeInternal, err.Error(), nil)
	}
	out := &CLIError{Err: e}
	switch e.Code {
	case errors.CodeRemoteFailure:
		out.Hint = fmt.Sprintf("check that an agent is running at %s (taskbridge serve)", flags.AgentURL)
	case errors.CodeTimeout:
		out.Hint = "try increasing the timeout with --timeout"
	case errors.CodeNotFound:
		out.Hint = "list known tasks with 'taskbridge tasks list'"
	case errors.CodeInvalidInput:
		out.Hint = "run 'taskbridge help' for usage information"
	}
	return out
}

func fatalCLI(err error, flags globalFlags) {
	cliErr := hintFor(err, flags)
	if flags.JSON {
		payload, _ := json.Marshal(map[string]any{"error": map[string]string{
			"code":    string(cliErr.Err.Code),
			"message": cliErr.Err.Message,
			"hint":    cliErr.Hint,
		}})
		fmt.Fprintln(os.Stderr, string(payload))
	} else {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", cliErr.Err.Code, cliErr.Err.Message)
		if cliErr.Hint != "" {
			fmt.Fprintf(os.Stderr, "  Hint: %s\n", cliErr.Hint)
		}
	}
	os.Exit(1)
}
