package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/graph"
)

// ErrBusy is returned by Refresh when another daemon kept the cluster's reconcile lease for
// every attempt.
var ErrBusy = errors.New("cluster is being reconciled elsewhere")

// Client is the clustergraph daemon client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
	attempts int
}

// NewClient creates a new clustergraph client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff:  DefaultBackoff(),
		attempts: 5,
	}
}

// WithBackoff sets how Refresh waits between attempts and how many attempts it makes.
func (c *Client) WithBackoff(b BackoffStrategy, attempts int) *Client {
	c.backoff = b
	c.attempts = max(attempts, 1)
	return c
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// apiError is a non-2xx answer from the daemon.
type apiError struct {
	StatusCode int
	Code       string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

func errorFrom(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	return &apiError{StatusCode: resp.StatusCode, Code: e.Error}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, out)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFrom(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.get(ctx, "/v1/health", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// GetGraph fetches the current topology graph.
func (c *Client) GetGraph(ctx context.Context) (*graph.Graph, error) {
	var g graph.Graph
	if err := c.get(ctx, "/v1/graph", &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetPasses fetches recent reconciliation passes, newest first.
func (c *Client) GetPasses(ctx context.Context, limit int) ([]Pass, error) {
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))

	var passes []Pass
	if err := c.get(ctx, "/v1/passes?"+q.Encode(), &passes); err != nil {
		return nil, err
	}
	return passes, nil
}

// Report copies the CSV report of the given type ("passes" or "summary") to w.
func (c *Client) Report(ctx context.Context, reportType string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/reports/"+url.PathEscape(reportType), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorFrom(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Refresh asks the daemon to reconcile now. While another daemon holds the cluster's
// reconcile lease it backs off and retries.
func (c *Client) Refresh(ctx context.Context) (*RefreshResult, error) {
	for attempt := 0; ; attempt++ {
		var res RefreshResult
		err := c.do(ctx, http.MethodPost, "/v1/refresh", &res)
		if err == nil {
			return &res, nil
		}

		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			return nil, err
		}
		if attempt+1 >= c.attempts {
			return nil, ErrBusy
		}
		if err := sleep(ctx, c.backoff.Next(attempt)); err != nil {
			return nil, err
		}
	}
}
