package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/tasks"
	"github.com/vinayprograms/orchestrator/telemetry"
)

// Client talks to the orchestrator HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the orchestrator at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type idResponse struct {
	ID string `json:"id"`
}

type taskResponse struct {
	OK      bool        `json:"ok"`
	Claimed bool        `json:"claimed"`
	Task    *tasks.Task `json:"task"`
}

type errorResponse struct {
	Error string           `json:"error"`
	Code  errors.ErrorCode `json:"code"`
}

// RegisterWorker registers a claim-mode worker and returns its ID.
func (c *Client) RegisterWorker(ctx context.Context, name string, capabilities []string) (string, error) {
	var out idResponse
	err := c.do(ctx, http.MethodPost, "/workers/register", map[string]any{
		"name":         name,
		"capabilities": capabilities,
	}, &out)
	return out.ID, err
}

// RegisterBot registers a push-mode bot and returns its ID.
func (c *Client) RegisterBot(ctx context.Context, name string, capabilities []string) (string, error) {
	var out idResponse
	err := c.do(ctx, http.MethodPost, "/bots/register", map[string]any{
		"name":         name,
		"capabilities": capabilities,
	}, &out)
	return out.ID, err
}

// Heartbeat implements heartbeat.Beater.
func (c *Client) Heartbeat(ctx context.Context, workerID string) error {
	return c.do(ctx, http.MethodPost, "/workers/heartbeat", map[string]string{"worker_id": workerID}, nil)
}

// Claim asks for the next eligible task. The bool is false when none is
// available.
func (c *Client) Claim(ctx context.Context, workerID string) (*tasks.Task, bool, error) {
	var out taskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks/claim", map[string]string{"worker_id": workerID}, &out); err != nil {
		return nil, false, err
	}
	if !out.Claimed || out.Task == nil {
		return nil, false, nil
	}
	return out.Task, true, nil
}

// Complete reports a finished task.
func (c *Client) Complete(ctx context.Context, taskID, workerID, summary string) error {
	return c.do(ctx, http.MethodPost, "/tasks/complete", map[string]string{
		"task_id":   taskID,
		"worker_id": workerID,
		"summary":   summary,
	}, nil)
}

// Fail reports a failed task.
func (c *Client) Fail(ctx context.Context, taskID, workerID, reason string) error {
	return c.do(ctx, http.MethodPost, "/tasks/fail", map[string]string{
		"task_id":   taskID,
		"worker_id": workerID,
		"error":     reason,
	}, nil)
}

// ListTasks returns every task, sorted by title.
func (c *Client) ListTasks(ctx context.Context) ([]*tasks.Task, error) {
	var out []*tasks.Task
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &out)
	return out, err
}

// Assign pushes a task to a bot.
func (c *Client) Assign(ctx context.Context, taskID, botID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/assign", map[string]string{
		"task_id": taskID,
		"bot_id":  botID,
	}, nil)
}

// Deliver marks a task delivered.
func (c *Client) Deliver(ctx context.Context, taskID, summary string) error {
	return c.do(ctx, http.MethodPost, "/deliver", map[string]string{
		"task_id": taskID,
		"summary": summary,
	}, nil)
}

// do sends a request and decodes the response into out. Error responses
// come back as coded errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	telemetry.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), method+" "+path)
		}
		return errors.Unavailable(fmt.Sprintf("%s %s", method, path), errors.WithCause(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Unavailable("read response", errors.WithCause(err))
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) != nil || e.Code == "" {
			e.Code = errors.CodeForStatus(resp.StatusCode)
			e.Error = strings.TrimSpace(string(data))
		}
		return errors.New(e.Code, fmt.Sprintf("%s %s: %s", method, path, e.Error),
			errors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
