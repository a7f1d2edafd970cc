package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"chat-agent/internal/domain"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-3.5-turbo"
	defaultTimeout = 30 * time.Second
)

// KeySource supplies the bearer credential for the provider.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource for a key known at startup.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", errors.New("openai: API key is empty")
	}
	return string(k), nil
}

// Client submits turns to an OpenAI-compatible chat completions endpoint. It
// keeps no conversation state; each Complete call is independent and is never
// retried.
type Client struct {
	keys       KeySource
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client

	mu  sync.Mutex
	api *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(baseURL), "/"); s != "" {
			c.baseURL = s
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if s := strings.TrimSpace(model); s != "" {
			c.model = s
		}
	}
}

// WithTimeout bounds each Complete call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. The key is resolved on the first Complete call
// and reused afterwards.
func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		keys:    keys,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) client(ctx context.Context) (*goopenai.Client, error) {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if api != nil {
		return api, nil
	}

	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = c.baseURL
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api == nil {
		c.api = goopenai.NewClientWithConfig(cfg)
	}
	return c.api, nil
}

// Complete sends turns and returns the first choice's content. Every failure
// is a *ProviderError.
func (c *Client) Complete(ctx context.Context, turns []domain.ChatMessage) (string, error) {
	if len(turns) == 0 {
		return "", &ProviderError{Kind: KindMalformed, Err: errors.New("no turns to submit")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	api, err := c.client(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ProviderError{Kind: KindTimeout, Err: err}
		}
		return "", &ProviderError{Kind: KindAuth, Err: err}
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	resp, err := api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: KindMalformed, Err: errors.New("no choices in response")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &ProviderError{Kind: KindMalformed, Err: errors.New("empty content in first choice")}
	}
	return content, nil
}

func classify(ctx context.Context, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ProviderError{Kind: KindMalformed, Err: err}
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &ProviderError{Kind: KindRateLimited, StatusCode: status, Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{Kind: KindAuth, StatusCode: status, Err: err}
	case status != 0:
		return &ProviderError{Kind: KindStatus, StatusCode: status, Err: err}
	}
	return &ProviderError{Kind: KindNetwork, Err: fmt.Errorf("request failed: %w", err)}
}
