// Package notify delivers workflow lifecycle events to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/objspace/orchestrator/pkg/types"
)

// Truncation limits for outputs embedded in event payloads.
const (
	stepOutputLimit  = 500
	finalResultLimit = 1000
)

// Notifier delivers lifecycle events. Delivery is best effort; failures are
// logged and never fail the workflow.
type Notifier interface {
	Notify(ctx context.Context, event types.EventType, workflowID, namespace string, data map[string]interface{})
}

// Webhook posts events to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. An empty URL yields a notifier
// that drops all events.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Notify posts one event. Errors are logged, not returned.
func (w *Webhook) Notify(ctx context.Context, event types.EventType, workflowID, namespace string, data map[string]interface{}) {
	if w.url == "" {
		w.logger.Debug("no webhook url configured, skipping notification",
			slog.String("event", string(event)))
		return
	}

	payload := types.Event{
		Event:      event,
		WorkflowID: workflowID,
		Namespace:  namespace,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("failed to marshal notification",
			slog.String("event", string(event)),
			slog.Any("error", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("failed to build notification request", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("failed to send notification",
			slog.String("event", string(event)),
			slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		w.logger.Warn("webhook rejected notification",
			slog.String("event", string(event)),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(respBody)))
		return
	}

	w.logger.Debug("notification sent",
		slog.String("event", string(event)),
		slog.String("workflow_id", workflowID))
}

var _ Notifier = (*Webhook)(nil)

// Nop discards all events.
type Nop struct{}

func (Nop) Notify(ctx context.Context, event types.EventType, workflowID, namespace string, data map[string]interface{}) {
}

var _ Notifier = Nop{}

// TruncateOutput renders a value as a string capped at the step output
// limit, for embedding in event payloads.
func TruncateOutput(v interface{}) string {
	return truncateValue(v, stepOutputLimit)
}

// TruncateFinal renders a final result capped at the larger final-result
// limit.
func TruncateFinal(v interface{}) string {
	return truncateValue(v, finalResultLimit)
}

func truncateValue(v interface{}, limit int) string {
	var text string
	if s, ok := v.(string); ok {
		text = s
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(data)
		}
	}
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

// TruncateOutputs applies TruncateOutput to every value of a map.
func TruncateOutputs(outputs map[string]interface{}) map[string]interface{} {
	truncated := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		truncated[k] = TruncateOutput(v)
	}
	return truncated
}
