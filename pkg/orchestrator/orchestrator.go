// Package orchestrator produces the next agent message of a task: it builds
// the model context, detects and runs tool calls, calls the model and retries
// the whole turn on failure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/taskbridge/pkg/bridge"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/resilience"
	"github.com/jllopis/taskbridge/pkg/task"
	"github.com/jllopis/taskbridge/pkg/telemetry"
	"github.com/jllopis/taskbridge/pkg/tool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ToolInvoker is the remote tool side used during a turn. *tool.Client
// satisfies it.
type ToolInvoker interface {
	Tools() []tool.Definition
	Tool(name string) (tool.Definition, bool)
	Invoke(ctx context.Context, name string, args map[string]any) (tool.Result, error)
}

// Dispatcher runs tasks whose skill is backed by a tool. *bridge.Bridge
// satisfies it.
type Dispatcher interface {
	DispatchTask(ctx context.Context, t *task.Task) bridge.Dispatch
}

// Identity names the agent in the generated system prompt.
type Identity struct {
	Name        string
	Description string
}

// StatusHook observes every status change the orchestrator makes.
type StatusHook func(ctx context.Context, t *task.Task)

// TurnResult is the outcome of one turn.
type TurnResult struct {
	TaskID    string           `json:"task_id"`
	MessageID string           `json:"message_id,omitempty"`
	Status    task.Status      `json:"status"`
	Message   *message.Message `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Artifacts map[string]any   `json:"artifacts,omitempty"`
}

// Orchestrator runs turns against shared task and message stores.
type Orchestrator struct {
	tasks    task.Store
	messages message.Log
	provider llm.Provider

	tools      ToolInvoker
	dispatcher Dispatcher
	delegator  Delegator
	identity   Identity

	providerName string
	model        string
	temperature  float64
	maxTokens    int

	maxAttempts int
	retryDelay  time.Duration

	strategies []Strategy
	families   []Family
	formatters map[string]Formatter

	onStatus StatusHook
	locks    *keyedMutex
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *telemetry.TurnMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTools attaches the remote tool client used for pre-check and extraction.
func WithTools(tools ToolInvoker) Option {
	return func(o *Orchestrator) { o.tools = tools }
}

// WithDispatcher routes tool-backed skills before any model call.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = d }
}

// WithIdentity sets the agent name and description used in the system prompt.
func WithIdentity(name, description string) Option {
	return func(o *Orchestrator) { o.identity = Identity{Name: name, Description: description} }
}

// WithModel sets the provider label and model name sent on each request.
func WithModel(provider, model string) Option {
	return func(o *Orchestrator) {
		o.providerName = provider
		o.model = model
	}
}

// WithSampling sets temperature and the completion token limit.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithRetry sets the attempt budget and the fixed delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithStrategies replaces the extraction chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(o *Orchestrator) { o.strategies = strategies }
}

// WithFamilies replaces the families used by the pre-check and, unless
// WithStrategies is given, by the heuristic extraction strategy.
func WithFamilies(families []Family) Option {
	return func(o *Orchestrator) { o.families = families }
}

// WithFormatter adds or replaces the formatter for one tool.
func WithFormatter(toolName string, f Formatter) Option {
	return func(o *Orchestrator) { o.formatters[toolName] = f }
}

// WithStatusHook registers a callback run after every status change.
func WithStatusHook(h StatusHook) Option {
	return func(o *Orchestrator) { o.onStatus = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records turn metrics.
func WithMetrics(m *telemetry.TurnMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator. Defaults: 3 attempts, 1s delay, default
// extraction chain, families and formatters.
func New(tasks task.Store, messages message.Log, provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks:       tasks,
		messages:    messages,
		provider:    provider,
		maxAttempts: 3,
		retryDelay:  time.Second,
		families:    DefaultFamilies(),
		formatters:  DefaultFormatters(),
		locks:       newKeyedMutex(),
		logger:      slog.Default(),
		tracer:      otel.Tracer("taskbridge/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.strategies == nil {
		o.strategies = strategiesFor(o.families)
	}
	return o
}

// Turn produces the next agent message for taskID. When every attempt fails
// the task is marked failed and the returned error has code
// CodeExhaustedRetries; the result still carries the failure.
func (o *Orchestrator) Turn(ctx context.Context, taskID string) (TurnResult, error) {
	unlock := o.locks.Lock(taskID)
	defer unlock()

	ctx = telemetry.WithTask(ctx, taskID)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Turn",
		trace.WithAttributes(telemetry.TaskAttributes(taskID, "sync", 0)...))
	defer span.End()
	start := time.Now()

	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TurnResult{TaskID: taskID, Error: err.Error()}, err
	}

	if res, ok := o.dispatch(ctx, t); ok {
		span.SetAttributes(attribute.String(telemetry.AttrTurnPath, "bridge"))
		o.metrics.RecordTurn(ctx, "sync", string(res.Status), time.Since(start))
		return res, nil
	}

	if res, ok, err := o.delegated(ctx, taskID); ok {
		span.SetAttributes(attribute.String(telemetry.AttrTurnPath, "delegate"))
		o.metrics.RecordTurn(ctx, "sync", string(res.Status), time.Since(start))
		return res, err
	}

	retry := resilience.FixedRetryConfig(o.maxAttempts, o.retryDelay).
		WithOnRetry(func(attempt int, err error) {
			o.logger.WarnContext(ctx, "turn.attempt.failed",
				slog.String("task_id", taskID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			o.metrics.RecordRetry(ctx, attempt)
		})

	var result TurnResult
	err = retry.Do(ctx, func(attempt int) error {
		span.SetAttributes(attribute.Int(telemetry.AttrTurnAttempt, attempt))
		text, path, err := o.respond(ctx, taskID)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String(telemetry.AttrTurnPath, path))

		stored, err := o.messages.Append(ctx, taskID, message.NewText(message.RoleAgent, text))
		if err != nil {
			return err
		}
		o.setStatus(ctx, taskID, task.StatusCompleted)
		result = TurnResult{
			TaskID:    taskID,
			MessageID: stored.ID,
			Status:    task.StatusCompleted,
			Message:   &stored,
		}
		return nil
	})
	if err != nil {
		o.setStatus(ctx, taskID, task.StatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordError(ctx, err, "orchestrator")
		o.metrics.RecordTurn(ctx, "sync", string(task.StatusFailed), time.Since(start))
		o.logger.ErrorContext(ctx, "turn.failed",
			slog.String("task_id", taskID),
			slog.Int("attempts", o.maxAttempts),
			slog.String("error", err.Error()),
		)
		return TurnResult{TaskID: taskID, Status: task.StatusFailed, Error: err.Error()},
			errors.New(errors.CodeExhaustedRetries, fmt.Sprintf("turn failed after %d attempts", o.maxAttempts), err).
				WithContext("task_id", taskID)
	}

	o.metrics.RecordTurn(ctx, "sync", string(result.Status), time.Since(start))
	return result, nil
}

// respond runs context build, pre-check, the model call and extraction. It
// returns the response text and which path produced it.
func (o *Orchestrator) respond(ctx context.Context, taskID string) (string, string, error) {
	history, err := o.messages.Get(ctx, taskID)
	if err != nil {
		return "", "", err
	}
	defs := o.knownTools()
	msgs := BuildContext(history, o.identity, defs)

	if len(defs) > 0 {
		if calls := PreCheck(o.families, latestUserText(msgs), o.isKnown); len(calls) > 0 {
			o.logger.DebugContext(ctx, "turn.precheck.matched",
				slog.String("task_id", taskID),
				slog.Int("calls", len(calls)),
			)
			return FormatResults(o.formatters, o.execute(ctx, calls)), "precheck", nil
		}
	}

	resp, err := o.chat(ctx, msgs)
	if err != nil {
		return "", "", err
	}
	text := resp.Content
	if text == "" || o.tools == nil {
		return text, "model", nil
	}
	if calls := Extract(o.strategies, text, toolNames(defs)); len(calls) > 0 {
		return FormatResults(o.formatters, o.execute(ctx, calls)), "extracted", nil
	}
	return text, "model", nil
}

func (o *Orchestrator) request(msgs []llm.Message) llm.ChatRequest {
	return llm.ChatRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
}

func (o *Orchestrator) chat(ctx context.Context, msgs []llm.Message) (*llm.ChatResponse, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.LLM.Chat")
	defer span.End()

	resp, err := o.provider.Chat(ctx, o.request(msgs))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.New(errors.CodeLLMError, "model call failed", err).WithRecoverable(true)
	}
	span.SetAttributes(telemetry.LLMAttributes(o.providerName, o.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

// execute runs calls sequentially in order. Invocation errors are folded into
// the result.
func (o *Orchestrator) execute(ctx context.Context, calls []tool.Call) []tool.Result {
	results := make([]tool.Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, o.invoke(ctx, call))
	}
	return results
}

func (o *Orchestrator) invoke(ctx context.Context, call tool.Call) tool.Result {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Tool.Call")
	defer span.End()

	res, err := o.tools.Invoke(ctx, call.Name, call.Parameters)
	if err != nil {
		res = tool.Result{Name: call.Name, Error: err.Error()}
	}
	if res.Name == "" {
		res.Name = call.Name
	}
	span.SetAttributes(telemetry.ToolCallAttributes(call.Name, "remote", !res.Failed())...)
	if res.Failed() {
		span.SetStatus(codes.Error, res.Error)
	}
	o.metrics.RecordToolCall(ctx, call.Name, "remote", !res.Failed())
	o.logger.InfoContext(ctx, "turn.tool.call",
		slog.String("tool", call.Name),
		slog.Bool("success", !res.Failed()),
	)
	return res
}

// dispatch hands tool-backed skills to the bridge. ok is false when the task
// is not a tool task.
func (o *Orchestrator) dispatch(ctx context.Context, t *task.Task) (TurnResult, bool) {
	if o.dispatcher == nil || t.Skill() == "" {
		return TurnResult{}, false
	}
	d := o.dispatcher.DispatchTask(ctx, t)
	if !d.Handled {
		return TurnResult{}, false
	}

	text := d.Error
	if d.Status == task.StatusCompleted {
		text = formatValue(d.Artifacts["result"])
	}
	res := TurnResult{TaskID: t.ID, Status: d.Status, Artifacts: d.Artifacts, Error: d.Error}
	if stored, err := o.messages.Append(ctx, t.ID, message.NewText(message.RoleAgent, text)); err == nil {
		res.MessageID = stored.ID
		res.Message = &stored
	} else {
		o.logger.WarnContext(ctx, "turn.bridge.store_failed", slog.String("task_id", t.ID), slog.String("error", err.Error()))
	}
	o.setStatus(ctx, t.ID, d.Status)
	return res, true
}

func (o *Orchestrator) setStatus(ctx context.Context, taskID string, status task.Status) {
	if !o.tasks.UpdateStatus(ctx, taskID, status) {
		o.logger.WarnContext(ctx, "task.status.rejected", slog.String("task_id", taskID), slog.String("status", string(status)))
		return
	}
	if o.onStatus == nil {
		return
	}
	if t, err := o.tasks.Get(ctx, taskID); err == nil {
		o.onStatus(ctx, t)
	}
}

func (o *Orchestrator) knownTools() []tool.Definition {
	if o.tools == nil {
		return nil
	}
	return o.tools.Tools()
}

func (o *Orchestrator) isKnown(name string) bool {
	if o.tools == nil {
		return false
	}
	_, ok := o.tools.Tool(name)
	return ok
}

func toolNames(defs []tool.Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
