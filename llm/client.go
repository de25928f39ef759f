package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Client is the minimal surface the agent loop needs from a provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultAPIVersion  = "2023-06-01"
	defaultHTTPTimeout = 180 * time.Second
)

// MessagesClient speaks the native HTTP messages API.
type MessagesClient struct {
	baseURL    string
	apiKey     string
	apiVersion string
	betaFlags  []string
	httpClient *http.Client
	retry      RetryPolicy
}

// MessagesOption configures a MessagesClient.
type MessagesOption func(*MessagesClient)

// WithBaseURL overrides the API base URL (useful for tests and proxies).
func WithBaseURL(url string) MessagesOption {
	return func(c *MessagesClient) { c.baseURL = url }
}

// WithAPIKey sets the API key. When unset the client reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) MessagesOption {
	return func(c *MessagesClient) { c.apiKey = key }
}

// WithBetaFlags sets beta feature flags sent on each request.
func WithBetaFlags(flags ...string) MessagesOption {
	return func(c *MessagesClient) { c.betaFlags = flags }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) MessagesOption {
	return func(c *MessagesClient) { c.httpClient = hc }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) MessagesOption {
	return func(c *MessagesClient) { c.retry = p }
}

// NewMessagesClient creates a MessagesClient with the given options.
func NewMessagesClient(opts ...MessagesOption) *MessagesClient {
	c := &MessagesClient{
		baseURL:    defaultBaseURL,
		apiVersion: defaultAPIVersion,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retry:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return c
}

// Complete sends the request, retrying transient failures per the policy.
func (c *MessagesClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, &ConfigurationError{ClientError: ClientError{Message: "no API key configured"}}
	}
	return Retry(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return c.do(ctx, req)
	})
}

// requestBody is the wire shape of a messages request. System is a top-level
// field on the wire, not a message.
type requestBody struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    []Block          `json:"system,omitempty"`
	Messages  []Message        `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Thinking  *ThinkingConfig  `json:"thinking,omitempty"`
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *MessagesClient) do(ctx context.Context, req Request) (*Response, error) {
	body := requestBody{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  req.Messages,
		Tools:     req.Tools,
		Thinking:  req.Thinking,
	}
	if req.System != "" {
		body.System = []Block{TextBlock(req.System)}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Message: "failed to build request", Cause: err}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)
	for _, flag := range c.betaFlags {
		httpReq.Header.Add("anthropic-beta", flag)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{ClientError: ClientError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, &NetworkError{ClientError: ClientError{Message: "request failed", Cause: err}}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{ClientError: ClientError{Message: "failed to read response body", Cause: err}}
	}

	if httpResp.StatusCode != http.StatusOK {
		var eb errorBody
		message := fmt.Sprintf("messages API returned %d", httpResp.StatusCode)
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			message = eb.Error.Message
		}
		return nil, ErrorFromStatusCode(httpResp.StatusCode, eb.Error.Type, message, retryAfterSeconds(httpResp))
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ClientError{Message: "failed to decode response", Cause: err}
	}
	return &resp, nil
}

// retryAfterSeconds parses the Retry-After header if present.
func retryAfterSeconds(resp *http.Response) *float64 {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return nil
	}
	return &secs
}
