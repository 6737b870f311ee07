package checker

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Probe reports whether the network path to the storefront is usable.
type Probe interface {
	Reachable(ctx context.Context) error
}

// HTTPProbe issues a HEAD request against a fixed URL.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe builds a probe. An empty url yields a probe that always succeeds.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{url: url, client: &http.Client{Timeout: timeout}}
}

// Reachable returns nil when any HTTP response comes back.
func (p *HTTPProbe) Reachable(ctx context.Context) error {
	if p.url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	resp.Body.Close()
	return nil
}

var _ Probe = (*HTTPProbe)(nil)
