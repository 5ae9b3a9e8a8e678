package remote

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/provider"
	"github.com/rmax-ai/clustergraph/pkg/provider/file"
)

// Source fetches snapshots from an HTTP endpoint exporting the cluster status, e.g. an agent
// on one of the cluster nodes. Unchanged snapshots are answered with 304 through ETags, and
// the previous snapshot is reused.
type Source struct {
	url    string
	client *http.Client

	mu   sync.Mutex
	etag string
	last *crm.ClusterStatus
}

var _ provider.Source = (*Source)(nil)

// NewSource creates a source polling endpoint.
func NewSource(endpoint string) *Source {
	return &Source{
		url:    endpoint,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *Source) ID() provider.SourceID {
	host := s.url
	if u, err := url.Parse(s.url); err == nil && u.Host != "" {
		host = u.Host
	}
	return provider.SourceID("remote:" + host)
}

func (s *Source) Fetch(ctx context.Context) (crm.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.etag != "" && s.last != nil {
		req.Header.Set("If-None-Match", s.etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		if s.last == nil {
			return nil, fmt.Errorf("%w: 304 without a cached snapshot", provider.ErrNoSnapshot)
		}
		return s.last, nil
	case http.StatusNotFound, http.StatusNoContent:
		return nil, fmt.Errorf("%w: endpoint returned %d", provider.ErrNoSnapshot, resp.StatusCode)
	default:
		return nil, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	status, err := file.Decode(resp.Body, formatOf(resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot from %s: %w", s.url, err)
	}
	s.last = status
	s.etag = resp.Header.Get("ETag")
	return status, nil
}

func formatOf(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "json"
	}
	if strings.Contains(mt, "yaml") {
		return "yaml"
	}
	return "json"
}
