// Package health probes the GET /health endpoint every service exposes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Body is the subset of the /health payload the harness understands.
type Body struct {
	Service      string            `json:"service"`
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Result is the outcome of one probe.
type Result struct {
	Name       string
	URL        string
	Healthy    bool
	StatusCode int
	Body       *Body
	Err        error
}

// Detail summarizes the result for status tables.
func (r *Result) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	parts := []string{fmt.Sprintf("HTTP %d", r.StatusCode)}
	if r.Body != nil && r.Body.Status != "" {
		parts = append(parts, r.Body.Status)
	}
	if r.Body != nil {
		deps := make([]string, 0, len(r.Body.Dependencies))
		for dep := range r.Body.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			parts = append(parts, dep+"="+r.Body.Dependencies[dep])
		}
	}
	return strings.Join(parts, ", ")
}

// Checker issues health probes.
type Checker struct {
	Client *http.Client
}

// NewChecker returns a checker whose probes time out after timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{Client: &http.Client{Timeout: timeout}}
}

// BaseURL returns http://host:port, mapping wildcard bind addresses to loopback.
func BaseURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Check issues GET <baseURL>/health. A 200 response is healthy unless the
// body reports a status other than "healthy" or "ok".
func (c *Checker) Check(ctx context.Context, baseURL string) *Result {
	url := strings.TrimRight(baseURL, "/") + "/health"
	res := &Result{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = err
		return res
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("unreachable: %w", err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		res.Err = fmt.Errorf("failed to read response: %w", err)
		return res
	}

	var body Body
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		res.Body = &body
	}

	res.Healthy = resp.StatusCode == http.StatusOK
	if res.Healthy && res.Body != nil && res.Body.Status != "" {
		switch strings.ToLower(res.Body.Status) {
		case "healthy", "ok":
		default:
			res.Healthy = false
		}
	}
	return res
}

// WaitHealthy polls until baseURL reports healthy or ctx ends.
func (c *Checker) WaitHealthy(ctx context.Context, baseURL string, interval time.Duration) (*Result, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res := c.Check(ctx, baseURL)
		if res.Healthy {
			return res, nil
		}
		select {
		case <-ctx.Done():
			if res.Err != nil {
				return res, fmt.Errorf("%s not healthy: %w", baseURL, res.Err)
			}
			return res, fmt.Errorf("%s not healthy: HTTP %d", baseURL, res.StatusCode)
		case <-ticker.C:
		}
	}
}

// Target names one endpoint for CheckAll.
type Target struct {
	Name    string
	BaseURL string
}

// CheckAll probes every target concurrently and returns results in input order.
func (c *Checker) CheckAll(ctx context.Context, targets []Target) []*Result {
	results := make([]*Result, len(targets))

	// an unhealthy target is a result, not a group error
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			res := c.Check(gctx, t.BaseURL)
			res.Name = t.Name
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}
