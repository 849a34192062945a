package server

import (
	"encoding/json"
	"net/http"

	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
)

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcTaskParams struct {
	TaskID  string          `json:"task_id"`
	Message message.Message `json:"message"`
}

// handleRPC serves the method-dispatch endpoint. Failures are reported as
// {"error": ...} with status 200 so callers read one shape.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	rpcErr := func(msg string) {
		writeJSON(w, http.StatusOK, map[string]string{"error": msg})
	}
	taskParams := func() (rpcTaskParams, bool) {
		var p rpcTaskParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				rpcErr("invalid params: " + err.Error())
				return p, false
			}
		}
		if p.TaskID == "" {
			rpcErr("task_id is required")
			return p, false
		}
		return p, true
	}

	switch req.Method {
	case "discovery":
		writeJSON(w, http.StatusOK, s.svc.Card())
	case "create_task":
		params := map[string]any{}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				rpcErr("invalid params: " + err.Error())
				return
			}
		}
		t, err := s.svc.CreateTask(ctx, params)
		if err != nil {
			rpcErr(errorMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"task_id": t.ID})
	case "get_task":
		p, ok := taskParams()
		if !ok {
			return
		}
		t, err := s.svc.GetTask(ctx, p.TaskID)
		if err != nil {
			rpcErr(taskErrorMessage(p.TaskID, err))
			return
		}
		writeJSON(w, http.StatusOK, t)
	case "add_message":
		p, ok := taskParams()
		if !ok {
			return
		}
		stored, err := s.svc.AddMessage(ctx, p.TaskID, p.Message)
		if err != nil {
			rpcErr(taskErrorMessage(p.TaskID, err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message_id": stored.ID})
	case "process_task":
		p, ok := taskParams()
		if !ok {
			return
		}
		res, err := s.svc.ProcessTask(ctx, p.TaskID)
		if err != nil && !errors.HasCode(err, errors.CodeExhaustedRetries) {
			rpcErr(taskErrorMessage(p.TaskID, err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "process_task_stream":
		rpcErr("Streaming not available via RPC, use HTTP streaming endpoint")
	default:
		rpcErr("Unknown method: " + req.Method)
	}
}

func errorMessage(err error) string {
	if e := errors.As(err); e != nil {
		return e.Message
	}
	return err.Error()
}

func taskErrorMessage(id string, err error) string {
	if errors.IsNotFound(err) {
		return "Task not found: " + id
	}
	return errorMessage(err)
}
