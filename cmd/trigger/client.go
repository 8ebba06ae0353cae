package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yungbote/logcompliance/internal/workflow"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{}}
}

// invoke posts t and returns the controller result. Non-2xx responses still carry a result.
func (c *apiClient) invoke(ctx context.Context, t workflow.Trigger) (workflow.Result, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return workflow.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/triggers", bytes.NewReader(body))
	if err != nil {
		return workflow.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	raw, status, err := c.do(req)
	if err != nil {
		return workflow.Result{}, err
	}
	var res workflow.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return workflow.Result{}, fmt.Errorf("decode result (http %d): %w: %s", status, err, truncate(raw))
	}
	return res, nil
}

func (c *apiClient) job(ctx context.Context, jobID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	raw, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get job %s: http %d: %s", jobID, status, truncate(raw))
	}
	return raw, nil
}

func (c *apiClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
