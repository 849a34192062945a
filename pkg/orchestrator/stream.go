package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/telemetry"
	"github.com/jllopis/taskbridge/pkg/tool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Event names of the streaming protocol.
const (
	EventMessageAdded  = "message_added"
	EventStatusChanged = "status_changed"
	EventChunk         = "chunk"
	EventCompleted     = "completed"
)

// Narration chunks emitted around tool execution.
const (
	ChunkExecutingTools = "\n\nExecuting tool calls..."
	ChunkGenerating     = "\n\nGenerating final response with tool results..."
)

// Event is one named server-push event with a JSON payload.
type Event struct {
	Name string
	Data any
}

// Chunk is the payload of a chunk event. Terminal chunks have Done set and
// carry either Message or Error.
type Chunk struct {
	TaskID    string           `json:"task_id"`
	MessageID string           `json:"message_id,omitempty"`
	Chunk     *message.Part    `json:"chunk,omitempty"`
	Status    task.Status      `json:"status,omitempty"`
	Done      bool             `json:"done"`
	Message   *message.Message `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Sink receives stream events in order.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

type streamTurn struct {
	o         *Orchestrator
	sink      Sink
	taskID    string
	messageID string
}

func (s *streamTurn) emit(ctx context.Context, c Chunk) {
	c.TaskID = s.taskID
	if c.MessageID == "" {
		c.MessageID = s.messageID
	}
	if err := s.sink.Send(ctx, Event{Name: EventChunk, Data: c}); err != nil {
		s.o.logger.WarnContext(ctx, "stream.sink.error",
			slog.String("task_id", s.taskID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *streamTurn) text(ctx context.Context, content string) {
	s.emit(ctx, Chunk{Chunk: &message.Part{Type: message.PartText, Content: content}})
}

// Stream runs a streaming turn, sending chunk events to sink. The model
// output is streamed as it arrives; extracted tool calls are executed and a
// second model call narrates the final answer. The final chunk has Done set.
// Streaming turns are not retried.
func (o *Orchestrator) Stream(ctx context.Context, taskID string, sink Sink) (TurnResult, error) {
	unlock := o.locks.Lock(taskID)
	defer unlock()

	ctx = telemetry.WithTask(ctx, taskID)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Stream",
		trace.WithAttributes(telemetry.TaskAttributes(taskID, "stream", 1)...))
	defer span.End()
	start := time.Now()

	s := &streamTurn{o: o, sink: sink, taskID: taskID, messageID: uuid.NewString()}

	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		s.emit(ctx, Chunk{Error: fmt.Sprintf("Task not found: %s", taskID), Done: true})
		return TurnResult{TaskID: taskID, Error: err.Error()}, err
	}

	if res, ok := o.dispatch(ctx, t); ok {
		s.emit(ctx, Chunk{MessageID: res.MessageID, Status: res.Status, Done: true, Message: res.Message, Error: res.Error})
		o.metrics.RecordTurn(ctx, "stream", string(res.Status), time.Since(start))
		return res, nil
	}

	o.setStatus(ctx, taskID, task.StatusWorking)

	fail := func(err error) (TurnResult, error) {
		o.setStatus(ctx, taskID, task.StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordError(ctx, err, "orchestrator")
		o.metrics.RecordTurn(ctx, "stream", string(task.StatusFailed), time.Since(start))
		s.emit(ctx, Chunk{Error: err.Error(), Status: task.StatusFailed, Done: true})
		return TurnResult{TaskID: taskID, MessageID: s.messageID, Status: task.StatusFailed, Error: err.Error()}, err
	}

	history, err := o.messages.Get(ctx, taskID)
	if err != nil {
		return fail(err)
	}
	defs := o.knownTools()
	msgs := BuildContext(history, o.identity, defs)

	full, err := o.streamModel(ctx, s, msgs)
	if err != nil {
		return fail(err)
	}

	if o.tools != nil {
		if calls := Extract(o.strategies, full, toolNames(defs)); len(calls) > 0 {
			full = o.streamTools(ctx, s, msgs, full, calls)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stored, err := o.messages.Append(ctx, taskID, message.Message{
		ID:    s.messageID,
		Role:  message.RoleAgent,
		Parts: []message.Part{{Type: message.PartText, Content: full}},
	})
	if err != nil {
		return fail(err)
	}
	o.setStatus(ctx, taskID, task.StatusCompleted)
	s.emit(ctx, Chunk{Status: task.StatusCompleted, Done: true, Message: &stored})
	o.metrics.RecordTurn(ctx, "stream", string(task.StatusCompleted), time.Since(start))

	return TurnResult{
		TaskID:    taskID,
		MessageID: stored.ID,
		Status:    task.StatusCompleted,
		Message:   &stored,
	}, nil
}

// streamModel forwards one model stream as text chunks and returns the
// accumulated text.
func (o *Orchestrator) streamModel(ctx context.Context, s *streamTurn, msgs []llm.Message) (string, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.LLM.Stream")
	defer span.End()

	chunks, err := llm.Stream(ctx, o.provider, o.request(msgs))
	if err != nil {
		span.RecordError(err)
		return "", errors.New(errors.CodeLLMError, "model stream failed", err)
	}
	var full strings.Builder
	for c := range chunks {
		if c.Error != nil {
			span.RecordError(c.Error)
			return full.String(), errors.New(errors.CodeLLMError, "model stream failed", c.Error)
		}
		if c.Usage != nil {
			span.SetAttributes(telemetry.LLMAttributes(o.providerName, o.model, c.Usage.PromptTokens, c.Usage.CompletionTokens)...)
		}
		if c.Content == "" {
			continue
		}
		full.WriteString(c.Content)
		s.text(ctx, c.Content)
	}
	return full.String(), nil
}

// streamTools executes calls, narrates each result and streams a second
// model answer that sees the results. A failing second call is narrated.
func (o *Orchestrator) streamTools(ctx context.Context, s *streamTurn, msgs []llm.Message, full string, calls []tool.Call) string {
	s.text(ctx, ChunkExecutingTools)

	results := make([]tool.Result, 0, len(calls))
	for _, call := range calls {
		res := o.invoke(ctx, call)
		results = append(results, res)
		if res.Failed() {
			s.text(ctx, fmt.Sprintf("\nTool '%s' error: %s", res.Name, res.Error))
			continue
		}
		value, _ := json.Marshal(res.Value)
		s.text(ctx, fmt.Sprintf("\nTool '%s' result: %s", res.Name, value))
	}

	encoded, _ := json.Marshal(results)
	followUp := append(append([]llm.Message(nil), msgs...),
		llm.Message{Role: llm.RoleAssistant, Content: full},
		llm.Message{Role: llm.RoleSystem, Content: "Tool results: " + string(encoded)},
	)

	s.text(ctx, ChunkGenerating)
	final, err := o.streamModel(ctx, s, followUp)
	if err != nil {
		o.logger.WarnContext(ctx, "stream.final_response.failed",
			slog.String("task_id", s.taskID),
			slog.String("error", err.Error()),
		)
		s.text(ctx, "\n\nError generating final response: "+err.Error())
	}
	return full + "\n\n" + final
}
