package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
)

// Event is one server-sent event with its raw JSON payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Chunk decodes a chunk event payload.
func (e Event) Chunk() (orchestrator.Chunk, error) {
	var c orchestrator.Chunk
	err := json.Unmarshal(e.Data, &c)
	return c, err
}

// StreamMessage appends msg and streams the agent's turn, calling fn for each
// event in order. Returning an error from fn stops the stream.
func (c *Client) StreamMessage(ctx context.Context, taskID string, msg message.Message, fn func(Event) error) error {
	resp, err := c.send(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/messages/stream", msg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	return readEvents(resp, fn)
}

func readEvents(resp *http.Response, fn func(Event) error) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		name string
		data strings.Builder
	)
	flush := func() error {
		if data.Len() == 0 {
			name = ""
			return nil
		}
		ev := Event{Name: name, Data: json.RawMessage(data.String())}
		if ev.Name == "" {
			ev.Name = "message"
		}
		name = ""
		data.Reset()
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.New(errors.CodeRemoteFailure, "read event stream", err)
	}
	return flush()
}
