package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"taskforge/backend/pkg/models"
)

// HTTPDispatcher is an HTTP implementation of the Dispatcher interface.
type HTTPDispatcher struct {
	url string
}

// NewHTTPDispatcher creates a new HTTPDispatcher.
func NewHTTPDispatcher(url string) *HTTPDispatcher {
	return &HTTPDispatcher{url: url}
}

// DispatchTask posts a queued task to the execution dispatcher.
func (c *HTTPDispatcher) DispatchTask(ctx context.Context, task *models.Task) error {
	return postJSON(ctx, c.url+"/dispatch", task)
}

// HTTPFeedbackSink is an HTTP implementation of the FeedbackSink interface.
type HTTPFeedbackSink struct {
	url string
}

// NewHTTPFeedbackSink creates a new HTTPFeedbackSink.
func NewHTTPFeedbackSink(url string) *HTTPFeedbackSink {
	return &HTTPFeedbackSink{url: url}
}

// EmitDecision posts a decision event to the learning sink.
func (c *HTTPFeedbackSink) EmitDecision(ctx context.Context, event *DecisionEvent) error {
	return postJSON(ctx, c.url+"/feedback/decisions", event)
}

// HTTPAuditSink is an HTTP implementation of the AuditSink interface.
type HTTPAuditSink struct {
	url string
}

// NewHTTPAuditSink creates a new HTTPAuditSink.
func NewHTTPAuditSink(url string) *HTTPAuditSink {
	return &HTTPAuditSink{url: url}
}

// RecordDecision posts a decision event to the audit log service.
func (c *HTTPAuditSink) RecordDecision(ctx context.Context, event *DecisionEvent) error {
	return postJSON(ctx, c.url+"/audit/decisions", event)
}

func postJSON(ctx context.Context, url string, payload interface{}) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("request to %s failed: status code %d", url, resp.StatusCode)
	}
	return nil
}
