// Package relay delivers speaker attribution payloads to waiting n8n
// workflow executions via their resume webhooks.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/attribot/attribot/internal/logging"
	"github.com/attribot/attribot/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds a single resume call end to end.
const DefaultTimeout = 10 * time.Second

// maxBodyExcerpt limits how much of an error response body is retained for
// logs and the audit trail.
const maxBodyExcerpt = 512

// DefaultWebhookPath is n8n's resume-webhook path segment. Routes may
// override it for instances behind a rewriting proxy.
const DefaultWebhookPath = "webhook-waiting"

// Payload is the JSON body posted to the resume webhook. The waiting
// workflow reads the speaker map and the transcription it belongs to.
type Payload struct {
	Metadata        map[string]string `json:"metadata"`
	TranscriptionID string            `json:"transcription_id"`
}

// Result describes a completed (not necessarily successful) relay attempt.
type Result struct {
	DeliveryID string        // unique ID assigned to this attempt
	StatusCode int           // HTTP status from n8n, 0 if unreachable
	Duration   time.Duration
}

// Client is an HTTP client wrapper for n8n resume webhooks.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
	logger     *logging.Logger
}

// NewClient creates a relay client for the given n8n base URL.
// timeout bounds each resume call; pass 0 for DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, metrics *Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		metrics: metrics,
		logger:  logging.GetLogger("relay.client"),
	}
}

// WebhookURL returns the resume webhook URL for an execution. An empty
// webhookPath uses DefaultWebhookPath.
func (c *Client) WebhookURL(webhookPath, executionID string) string {
	if webhookPath == "" {
		webhookPath = DefaultWebhookPath
	}
	return fmt.Sprintf("%s/%s/%s", c.baseURL, webhookPath, executionID)
}

// Resume posts the payload to the waiting execution's resume webhook.
//
// The returned Result always carries the delivery ID and duration, even on
// error. 404 responses map to ErrWorkflowNotWaiting; other non-2xx responses
// map to *StatusError with a body excerpt.
func (c *Client) Resume(ctx context.Context, webhookPath, executionID string, payload Payload) (*Result, error) {
	deliveryID := uuid.NewString()
	ctx, span := tracing.Tracer("relay").Start(ctx, "relay.resume")
	span.SetAttributes(
		attribute.String("delivery.id", deliveryID),
		attribute.String("execution.id", executionID),
	)
	defer span.End()

	logger := c.logger.WithFields(
		logging.Field("delivery_id", deliveryID),
		logging.Field("execution_id", executionID),
	)

	result := &Result{DeliveryID: deliveryID}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if c.metrics != nil {
			c.metrics.Duration.Observe(result.Duration.Seconds())
		}
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	reqURL := c.WebhookURL(webhookPath, executionID)
	logger.Debug("Posting resume payload to %s", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("create resume request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countOutcome(OutcomeUnreachable)
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook unreachable")
		logger.Error("Resume call failed: %v", err)
		return result, fmt.Errorf("execute resume request: %w", err)
	}
	defer resp.Body.Close()

	// Read to completion for connection reuse.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	if err != nil {
		respBody = nil
	}
	result.StatusCode = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.countOutcome(OutcomeNotWaiting)
		span.SetStatus(codes.Error, "workflow not waiting")
		logger.Warn("Workflow not waiting (status 404)")
		return result, ErrWorkflowNotWaiting
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.countOutcome(OutcomeHTTPError)
		span.SetStatus(codes.Error, "webhook rejected payload")
		logger.Error("Resume rejected: status=%d body=%s", resp.StatusCode, string(respBody))
		return result, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.countOutcome(OutcomeSuccess)
	logger.InfoWithFields("Workflow resumed",
		logging.Field("status", resp.StatusCode),
		logging.Field("duration_ms", time.Since(start).Milliseconds()),
	)
	return result, nil
}

func (c *Client) countOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
	}
}
