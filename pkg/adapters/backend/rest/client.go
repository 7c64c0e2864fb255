package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// Config holds the remote service settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements ExecutionBackend and WorkflowRepository over HTTP
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// apiError is the error body returned by the service
type apiError struct {
	Detail  any    `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) text() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	}
	switch d := e.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}

// New creates a client for the service at cfg.BaseURL. Requests are never
// retried.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{http: c, logger: logger}
}

// List returns all workflows
func (c *Client) List(ctx context.Context) ([]domain.Workflow, error) {
	var out []domain.Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows", "", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return out, nil
}

// Get fetches one workflow
func (c *Client) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	var out domain.Workflow
	if err := c.do(ctx, http.MethodGet, "/workflows/{id}", id, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	return &out, nil
}

// Create stores a new workflow; the service assigns the id
func (c *Client) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	var out domain.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows", "", writePayload(wf), &out); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	return &out, nil
}

// Update replaces a workflow
func (c *Client) Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error) {
	var out domain.Workflow
	if err := c.do(ctx, http.MethodPut, "/workflows/{id}", id, writePayload(wf), &out); err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", id, err)
	}
	return &out, nil
}

// Delete removes a workflow
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/workflows/{id}", id, nil, nil); err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	return nil
}

// Clone copies a workflow server-side and returns the copy
func (c *Client) Clone(ctx context.Context, id string) (*domain.Workflow, error) {
	var out domain.Workflow
	if err := c.do(ctx, http.MethodPost, "/workflows/{id}/clone", id, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to clone workflow %s: %w", id, err)
	}
	return &out, nil
}

// Export returns the service's export document for a workflow
func (c *Client) Export(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/workflows/{id}/export", id, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to export workflow %s: %w", id, err)
	}
	return out, nil
}

// Execute runs a saved workflow. Inputs holding files are sent as
// multipart form data, everything else as JSON. A response with status
// "error" is returned as is; the caller decides how to surface it.
func (c *Client) Execute(ctx context.Context, req *domain.ExecuteRequest) (*domain.ExecuteResponse, error) {
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeStandard
	}

	r := c.http.R().
		SetContext(ctx).
		SetPathParam("id", req.WorkflowID).
		SetResult(&domain.ExecuteResponse{}).
		SetError(&apiError{})

	if req.HasFiles() {
		fields, err := multipartFields(req, mode, r)
		if err != nil {
			return nil, err
		}
		r.SetMultipartFormData(fields)
	} else {
		r.SetBody(map[string]any{"inputs": req.Inputs, "mode": mode})
	}

	start := time.Now()
	resp, err := r.Post("/workflows/{id}/execute")
	if err != nil {
		return nil, fmt.Errorf("failed to execute workflow %s: %w", req.WorkflowID, err)
	}
	if resp.IsError() {
		return nil, c.responseError(resp)
	}

	out := resp.Result().(*domain.ExecuteResponse)
	c.logger.Info("workflow executed",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("execution_id", out.ExecutionID),
		zap.String("status", out.Status),
		zap.Float64("execution_time", out.ExecutionTime),
		zap.Duration("round_trip", time.Since(start)))
	return out, nil
}

// multipartFields adds file parts to r and returns the plain form fields:
// mode, {key}_value and {key}_type, with files under file_{key}.
func multipartFields(req *domain.ExecuteRequest, mode domain.ExecutionMode, r *resty.Request) (map[string]string, error) {
	fields := map[string]string{"mode": string(mode)}

	keys := make([]string, 0, len(req.Inputs))
	for k := range req.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		in := req.Inputs[key]
		fields[key+"_type"] = string(in.Type)

		switch v := in.Value.(type) {
		case domain.FileValue:
			r.SetMultipartField("file_"+key, v.Name, v.ContentType, bytes.NewReader(v.Data))
		case *domain.FileValue:
			r.SetMultipartField("file_"+key, v.Name, v.ContentType, bytes.NewReader(v.Data))
		case string:
			fields[key+"_value"] = v
		case nil:
			fields[key+"_value"] = ""
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode input %s: %w", key, err)
			}
			fields[key+"_value"] = string(b)
		}
	}
	return fields, nil
}

func (c *Client) do(ctx context.Context, method, path, id string, body, result any) error {
	r := c.http.R().
		SetContext(ctx).
		SetError(&apiError{})
	if id != "" {
		r.SetPathParam("id", id)
	}
	if body != nil {
		r.SetBody(body)
	}
	if result != nil {
		r.SetResult(result)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound && id != "" {
		return fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	if resp.IsError() {
		return c.responseError(resp)
	}
	return nil
}

func (c *Client) responseError(resp *resty.Response) error {
	msg := ""
	if e, ok := resp.Error().(*apiError); ok && e != nil {
		msg = e.text()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	if msg == "" {
		msg = resp.Status()
	}
	c.logger.Warn("workflow service error",
		zap.String("method", resp.Request.Method),
		zap.String("url", resp.Request.URL),
		zap.Int("status", resp.StatusCode()),
		zap.String("error", msg))
	return fmt.Errorf("workflow service returned %d: %s", resp.StatusCode(), msg)
}

// writePayload is the body accepted by create and update
func writePayload(wf *domain.Workflow) map[string]any {
	nodes := wf.Nodes
	if nodes == nil {
		nodes = []domain.Node{}
	}
	edges := wf.Edges
	if edges == nil {
		edges = []domain.Edge{}
	}
	payload := map[string]any{
		"name":        wf.Name,
		"description": wf.Description,
		"nodes":       nodes,
		"edges":       edges,
	}
	if wf.Status != "" {
		payload["status"] = wf.Status
	}
	return payload
}
