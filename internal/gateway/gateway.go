// Package gateway performs outbound HTTP invocations for endpoint, router,
// and agent steps, with its own retry and timeout budget.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Defaults applied when a request leaves retry or timeout unset.
const (
	DefaultTimeoutMS    = 45000
	DefaultRetryDelayMS = 1000
)

// Request describes one outbound invocation.
type Request struct {
	URL          string
	Method       string
	Headers      map[string]string
	Body         string
	Retries      int
	RetryDelayMS int
	TimeoutMS    int
}

// Result is the outcome of an invocation. Success false is always a hard
// failure for the calling step, regardless of HTTP status.
type Result struct {
	Success    bool
	Status     int
	StatusText string
	Headers    map[string]string
	Body       string
	Attempts   int
	Duration   time.Duration
	Error      string
}

// Invoker performs outbound calls. Implementations must be safe for
// concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Client is the default Invoker backed by net/http.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a gateway client. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			// Per-call deadlines come from the request's TimeoutMS.
			Timeout: 0,
		},
		logger: logger,
	}
}

// envelope is the application-level success flag some services embed in
// their response body. A body that decodes with Success pointing at false
// fails the invocation even on HTTP 2xx.
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Invoke performs the call. Client errors (4xx) are not retried; server
// errors (5xx) and network failures are, up to the request's retry budget.
// A non-nil error is returned only for malformed requests or context
// cancellation; invocation failures are reported via Result.
func (c *Client) Invoke(ctx context.Context, req *Request) (*Result, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("request url is empty")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultTimeoutMS * time.Millisecond
	}
	retryDelay := time.Duration(req.RetryDelayMS) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelayMS * time.Millisecond
	}
	retries := req.Retries
	if retries < 0 {
		retries = 0
	}

	start := time.Now()
	result := &Result{}
	var lastErr string

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying invocation",
				slog.String("url", req.URL),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", retries))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				result.Attempts = attempt
				result.Duration = time.Since(start)
				result.Error = ctx.Err().Error()
				return result, ctx.Err()
			}
		}
		result.Attempts = attempt + 1

		status, statusText, headers, body, err := c.do(ctx, method, req, timeout)
		if err != nil {
			if ctx.Err() != nil {
				result.Duration = time.Since(start)
				result.Error = ctx.Err().Error()
				return result, ctx.Err()
			}
			lastErr = err.Error()
			c.logger.Warn("invocation attempt failed",
				slog.String("url", req.URL),
				slog.Any("error", err))
			continue
		}

		result.Status = status
		result.StatusText = statusText
		result.Headers = headers
		result.Body = body
		result.Duration = time.Since(start)

		if status >= 200 && status < 300 {
			// HTTP success can still be an application-level failure.
			var env envelope
			if json.Unmarshal([]byte(body), &env) == nil && env.Success != nil && !*env.Success {
				result.Success = false
				result.Error = env.Error
				if result.Error == "" {
					result.Error = "service reported success: false"
				}
				return result, nil
			}
			result.Success = true
			return result, nil
		}

		lastErr = fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200))
		if status >= 400 && status < 500 {
			result.Error = lastErr
			return result, nil
		}
	}

	result.Duration = time.Since(start)
	result.Error = fmt.Sprintf("failed after %d attempts: %s", result.Attempts, lastErr)
	return result, nil
}

// do performs a single HTTP attempt under its own deadline.
func (c *Client) do(ctx context.Context, method string, req *Request, timeout time.Duration) (int, string, map[string]string, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != "" && method != http.MethodGet {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, req.URL, bodyReader)
	if err != nil {
		return 0, "", nil, "", fmt.Errorf("build request: %w", err)
	}

	if httpReq.Header.Get("Content-Type") == "" && bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, "", nil, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, "", fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return resp.StatusCode, http.StatusText(resp.StatusCode), headers, string(respBody), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Invoker = (*Client)(nil)
