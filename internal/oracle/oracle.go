// Package oracle provides natural-language completion for workflow steps,
// condition evaluation, and routing decisions.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Provider is a single LLM backend.
type Provider interface {
	// Complete returns the text of a single completion.
	Complete(ctx context.Context, req *Request) (string, error)
	Name() string
}

// Request is one completion request.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Config holds provider credentials and defaults.
type Config struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string

	DefaultProvider string
	DefaultModel    string
	MaxTokens       int
}

// Client dispatches completion requests to a named provider.
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	defaultModel    string
	maxTokens       int
}

// New creates a Client with all configured providers registered.
func New(cfg Config) (*Client, error) {
	providers := make(map[string]Provider)

	if cfg.AnthropicAPIKey != "" {
		providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL)
	}
	if cfg.OpenAIAPIKey != "" {
		providers["openai"] = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no oracle providers configured")
	}

	defaultProvider := strings.ToLower(cfg.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = "anthropic"
	}
	if _, ok := providers[defaultProvider]; !ok {
		for name := range providers {
			defaultProvider = name
			break
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Client{
		providers:       providers,
		defaultProvider: defaultProvider,
		defaultModel:    cfg.DefaultModel,
		maxTokens:       maxTokens,
	}, nil
}

// Register adds or replaces a provider. Used by tests to install fakes.
func (c *Client) Register(name string, p Provider) {
	c.providers[strings.ToLower(name)] = p
}

// DefaultProvider returns the provider name used when a request names none.
func (c *Client) DefaultProvider() string { return c.defaultProvider }

// Complete runs a completion against the named provider. Empty provider or
// model fall back to the configured defaults.
func (c *Client) Complete(ctx context.Context, provider, model, systemPrompt, userPrompt string) (string, error) {
	name := strings.ToLower(provider)
	if name == "" {
		name = c.defaultProvider
	}

	p, ok := c.providers[name]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	if model == "" {
		model = c.defaultModel
	}

	return p.Complete(ctx, &Request{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    c.maxTokens,
	})
}

// httpClient is shared by all providers, with a long timeout for slow
// completions. Per-call deadlines come from the request context.
var httpClient = &http.Client{
	Timeout: 10 * time.Minute,
	Transport: &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// doRequest performs an HTTP request with retries on network errors and 5xx
// responses. 4xx responses are returned to the caller without retry.
func doRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	retryDelay := 1 * time.Second
	const maxRetries = 3

	for i := 0; ; i++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil || i >= maxRetries {
				return nil, err
			}
			slog.Warn("oracle request failed, retrying",
				slog.String("url", url),
				slog.Duration("delay", retryDelay),
				slog.Any("error", err))
			time.Sleep(retryDelay)
			retryDelay *= 2
			continue
		}

		if resp.StatusCode >= 500 && i < maxRetries {
			resp.Body.Close()
			slog.Warn("oracle returned server error, retrying",
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
				slog.Duration("delay", retryDelay))
			time.Sleep(retryDelay)
			retryDelay *= 2
			continue
		}

		return resp, nil
	}
}

// readError formats a non-200 provider response as an error.
func readError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
}
