package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jllopis/taskbridge/pkg/a2a/client"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
)

func newClient(flags globalFlags) *client.Client {
	return client.New(flags.AgentURL,
		client.WithTimeout(flags.Timeout),
		client.WithRetries(1),
		client.WithBearerToken(flags.Token),
	)
}

func runCard(ctx context.Context, flags globalFlags) error {
	card, err := newClient(flags).Card(ctx)
	if err != nil {
		return err
	}
	if flags.JSON {
		printJSON(card)
		return nil
	}
	fmt.Printf("%s (%s) %s\n%s\n\n", card.Name, card.Version, card.Endpoint, card.Description)
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "SKILL\tPROTOCOL\tDESCRIPTION")
	for _, s := range card.Skills {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", s.Name, s.Protocol, s.Description)
	}
	return writer.Flush()
}

func runTasks(ctx context.Context, flags globalFlags, args []string) error {
	if len(args) == 0 {
		return errors.InvalidInput("usage: taskbridge tasks <list|get|create|send|stream>")
	}
	c := newClient(flags)

	switch args[0] {
	case "list":
		cmd := flag.NewFlagSet("tasks list", flag.ContinueOnError)
		status := cmd.String("status", "", "Task status filter")
		if err := cmd.Parse(args[1:]); err != nil {
			return errors.InvalidInput("%v", err)
		}
		tasks, err := c.ListTasks(ctx, task.Status(*status))
		if err != nil {
			return err
		}
		if flags.JSON {
			printJSON(tasks)
			return nil
		}
		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "TASK_ID\tSTATUS\tSKILL\tUPDATED")
		for _, t := range tasks {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Skill(), t.UpdatedAt.Format(time.RFC3339))
		}
		return writer.Flush()

	case "get":
		if len(args) != 2 {
			return errors.InvalidInput("usage: taskbridge tasks get <task_id>")
		}
		t, err := c.GetTask(ctx, args[1])
		if err != nil {
			return err
		}
		printJSON(t)
		return nil

	case "create":
		cmd := flag.NewFlagSet("tasks create", flag.ContinueOnError)
		skill := cmd.String("skill", "", "Skill to dispatch")
		var params multiFlag
		cmd.Var(&params, "param", "Skill parameter key=value (repeatable)")
		if err := cmd.Parse(args[1:]); err != nil {
			return errors.InvalidInput("%v", err)
		}
		body := map[string]any{}
		if *skill != "" {
			body[task.ParamSkill] = *skill
		}
		if len(params) > 0 {
			values := map[string]any{}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return errors.InvalidInput("invalid --param %q, want key=value", p)
				}
				values[k] = v
			}
			body[task.ParamParameters] = values
		}
		id, err := c.CreateTask(ctx, body)
		if err != nil {
			return err
		}
		if flags.JSON {
			printJSON(map[string]string{"task_id": id})
			return nil
		}
		fmt.Println(id)
		return nil

	case "send":
		if len(args) < 3 {
			return errors.InvalidInput("usage: taskbridge tasks send <task_id> <text>")
		}
		res, err := c.SendMessage(ctx, args[1], message.NewText(message.RoleUser, strings.Join(args[2:], " ")))
		if err != nil {
			return err
		}
		if flags.JSON {
			printJSON(res)
			return nil
		}
		printTurn(res)
		return nil

	case "stream":
		if len(args) < 3 {
			return errors.InvalidInput("usage: taskbridge tasks stream <task_id> <text>")
		}
		msg := message.NewText(message.RoleUser, strings.Join(args[2:], " "))
		return c.StreamMessage(ctx, args[1], msg, func(ev client.Event) error {
			if flags.JSON {
				fmt.Printf("{\"event\":%q,\"data\":%s}\n", ev.Name, ev.Data)
				return nil
			}
			return printStreamEvent(ev)
		})
	}
	return errors.InvalidInput("unknown tasks command %q", args[0])
}

func runRPC(ctx context.Context, flags globalFlags, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.InvalidInput("usage: taskbridge rpc <method> [json-params]")
	}
	var params any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return errors.InvalidInput("invalid params JSON: %v", err)
		}
	}
	var out json.RawMessage
	if err := newClient(flags).Call(ctx, args[0], params, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func printTurn(res *orchestrator.TurnResult) {
	switch {
	case res.Message != nil:
		fmt.Println(res.Message.Text())
	case res.Error != "":
		fmt.Fprintf(os.Stderr, "task %s %s: %s\n", res.TaskID, res.Status, res.Error)
	default:
		printJSON(res.Artifacts)
	}
}

func printStreamEvent(ev client.Event) error {
	switch ev.Name {
	case orchestrator.EventChunk:
		chunk, err := ev.Chunk()
		if err != nil {
			return err
		}
		if chunk.Error != "" {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", chunk.Error)
		}
		if chunk.Chunk != nil {
			if text, ok := chunk.Chunk.Content.(string); ok {
				fmt.Print(text)
			}
		}
	case orchestrator.EventCompleted:
		fmt.Println()
	}
	return nil
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
