package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/jllopis/taskbridge/pkg/orchestrator"
)

// sseStream writes orchestrator events as server-sent events.
type sseStream struct {
	mu sync.Mutex
	w  http.ResponseWriter
	f  http.Flusher
}

// Send implements orchestrator.Sink.
func (s *sseStream) Send(ctx context.Context, ev orchestrator.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write([]byte("event: " + ev.Name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
