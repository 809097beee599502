package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxSnapshot caps stored response headers/bodies so one chatty endpoint
// cannot bloat the delivery log.
const maxSnapshot = 5000

// Result is the outcome of a single outbound attempt. Transport failures
// carry an Err string and no response snapshot.
type Result struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	DurationMs int64
	Err        string
}

// Success is true for any response below 400 with no transport error.
func (r *Result) Success() bool {
	return r.Err == "" && r.StatusCode < 400
}

// Executor performs one HTTP attempt against a webhook target. It never
// returns an error past its boundary: every failure mode becomes a
// Result the caller records.
type Executor struct {
	client *http.Client
}

func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (e *Executor) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) *Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(string(body)))
	if err != nil {
		return &Result{
			Err:        fmt.Sprintf("build request: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &Result{
			Err:        fmt.Sprintf("request failed: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnapshot))

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       string(respBody),
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	size := 0
	for k, vs := range h {
		v := strings.Join(vs, ", ")
		size += len(k) + len(v)
		if size > maxSnapshot {
			break
		}
		out[k] = v
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
