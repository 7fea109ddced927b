// Package workflow triggers remote worker execution through a
// workflow-dispatch HTTP API.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for trigger failures.
var (
	ErrTriggerUnreachable = errors.New("dispatch trigger unreachable")
	ErrTriggerRejected    = errors.New("dispatch trigger rejected request")
	ErrTriggerTimeout     = errors.New("dispatch trigger timeout")
)

// Trigger starts a remote worker run. Implementations must treat the call as
// fire-and-forget: success means the run was accepted, not that it finished.
type Trigger interface {
	TriggerRun(ctx context.Context, params RunParams) error
	Ready(ctx context.Context) error
}

// RunParams are the inputs handed to the remote worker. SKUs and Sources are
// present only for single-unit (full mode) runs.
type RunParams struct {
	JobID       string
	SKUs        []string
	Sources     []string
	Concurrency int
	Mode        string
	TestMode    bool
}

// HTTPClient implements Trigger against a GitHub-style workflow dispatch API.
type HTTPClient struct {
	baseURL     string
	token       string
	repository  string
	workflowRef string
	client      *http.Client
}

// NewHTTPClient creates a new workflow dispatch client.
func NewHTTPClient(baseURL, token, repository, workflowRef string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		repository:  repository,
		workflowRef: workflowRef,
		client:      &http.Client{Timeout: timeout},
	}
}

type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

func (c *HTTPClient) TriggerRun(ctx context.Context, params RunParams) error {
	inputs := map[string]string{
		"job_id":      params.JobID,
		"mode":        params.Mode,
		"concurrency": strconv.Itoa(params.Concurrency),
		"test_mode":   strconv.FormatBool(params.TestMode),
	}
	if len(params.SKUs) > 0 {
		inputs["skus"] = strings.Join(params.SKUs, ",")
	}
	if len(params.Sources) > 0 {
		inputs["sources"] = strings.Join(params.Sources, ",")
	}

	body, err := json.Marshal(dispatchRequest{Ref: "main", Inputs: inputs})
	if err != nil {
		return fmt.Errorf("encoding dispatch request: %w", err)
	}

	u := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches",
		c.baseURL, c.repository, c.workflowRef)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrTriggerRejected, resp.StatusCode)
	}
	return nil
}

// Ready verifies the workflow is reachable with the configured credentials.
func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/repos/%s/actions/workflows/%s", c.baseURL, c.repository, c.workflowRef)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrTriggerRejected, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTriggerTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTriggerTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTriggerUnreachable, err)
}
