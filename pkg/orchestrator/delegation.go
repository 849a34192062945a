package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/task"
	"go.opentelemetry.io/otel/codes"
)

// Delegator hands recognized requests to another agent.
// *delegate.Delegate satisfies it.
type Delegator interface {
	Match(text string) bool
	Forward(ctx context.Context, text string) string
}

const reformatSystemPrompt = "You are a helpful assistant that formats tool results into natural conversation responses."

// WithDelegator forwards matching user requests before the model is asked.
// Only synchronous turns delegate.
func WithDelegator(d Delegator) Option {
	return func(o *Orchestrator) { o.delegator = d }
}

// delegated answers the turn through the delegator when the latest user text
// matches. ok is false when the turn stays local.
func (o *Orchestrator) delegated(ctx context.Context, taskID string) (TurnResult, bool, error) {
	if o.delegator == nil {
		return TurnResult{}, false, nil
	}
	history, err := o.messages.Get(ctx, taskID)
	if err != nil {
		return TurnResult{}, false, nil
	}
	text := lastUserText(history)
	if text == "" || !o.delegator.Match(text) {
		return TurnResult{}, false, nil
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Delegate")
	defer span.End()
	o.logger.InfoContext(ctx, "turn.delegated")

	reply := o.reformat(ctx, text, o.delegator.Forward(ctx, text))
	stored, err := o.messages.Append(ctx, taskID, message.NewText(message.RoleAgent, reply))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.setStatus(ctx, taskID, task.StatusFailed)
		return TurnResult{TaskID: taskID, Status: task.StatusFailed, Error: err.Error()}, true, err
	}
	o.setStatus(ctx, taskID, task.StatusCompleted)
	return TurnResult{
		TaskID:    taskID,
		MessageID: stored.ID,
		Status:    task.StatusCompleted,
		Message:   &stored,
	}, true, nil
}

// reformat asks the model to turn a delegated answer into a reply for the
// user. The raw answer is used when the model fails or returns nothing.
func (o *Orchestrator) reformat(ctx context.Context, question, raw string) string {
	prompt := fmt.Sprintf("You are a helpful assistant. A user asked: \"%s\"\n\n"+
		"The tools provided this result: %s\n\n"+
		"Please provide a natural, human-friendly response to the user based on this tool result. "+
		"Be conversational and helpful.\n\nResponse:", question, raw)
	resp, err := o.chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: reformatSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		o.logger.WarnContext(ctx, "turn.delegate.reformat_failed", slog.String("error", err.Error()))
		return raw
	}
	if strings.TrimSpace(resp.Content) == "" {
		return raw
	}
	return resp.Content
}

func lastUserText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != message.RoleUser {
			continue
		}
		if text := history[i].Text(); text != "" {
			return text
		}
	}
	return ""
}
