// Package webhook delivers task status notifications to a configured URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/taskbridge/pkg/task"
)

// Notification is the body posted on a status change. WebhookID selects the
// URL suffix and is not sent.
type Notification struct {
	TaskID    string         `json:"task_id"`
	Status    task.Status    `json:"status"`
	Timestamp float64        `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	WebhookID string         `json:"-"`
}

// NewNotification builds a notification for t. The task's webhook_task_id
// param, when set, overrides the id used in the URL.
func NewNotification(t *task.Task, status task.Status, data map[string]any) Notification {
	n := Notification{
		TaskID:    t.ID,
		Status:    status,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      data,
		WebhookID: t.ID,
	}
	if id, ok := t.Params[task.ParamWebhookTaskID].(string); ok && id != "" {
		n.WebhookID = id
	}
	return n
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) {}

// HTTPNotifier posts notifications as JSON. Delivery failures are logged.
type HTTPNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// Option configures an HTTPNotifier.
type Option func(*HTTPNotifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *HTTPNotifier) {
		if c != nil {
			n.client = c
		}
	}
}

// WithTimeout sets the per-delivery timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *HTTPNotifier) {
		if d > 0 {
			n.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *HTTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewHTTPNotifier creates a notifier posting to url.
func NewHTTPNotifier(url string, opts ...Option) *HTTPNotifier {
	n := &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// TargetURL joins base and id with a single slash. A base already ending in
// id is returned unchanged.
func TargetURL(base, id string) string {
	if id == "" || strings.HasSuffix(base, id) {
		return base
	}
	if strings.HasSuffix(base, "/") {
		return base + id
	}
	return base + "/" + id
}

// Notify implements Notifier.
func (h *HTTPNotifier) Notify(ctx context.Context, n Notification) {
	if err := h.send(ctx, n); err != nil {
		h.logger.WarnContext(ctx, "webhook.delivery.failed",
			slog.String("task_id", n.TaskID),
			slog.String("status", string(n.Status)),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.DebugContext(ctx, "webhook.delivered",
		slog.String("task_id", n.TaskID),
		slog.String("status", string(n.Status)),
	)
}

func (h *HTTPNotifier) send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TargetURL(h.url, n.WebhookID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
