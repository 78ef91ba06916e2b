package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HallyG/knot/internal/log"
	resty "resty.dev/v3"
)

const (
	defaultTimeout          = 1 * time.Minute
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 2 * time.Second
	defaultMaxRetryWaitTime = 10 * time.Second
)

// ErrorUnmarshaller turns a non-2xx response into an error.
type ErrorUnmarshaller func(statusCode int, body []byte) error

// BaseClient sends JSON requests to a single API host.
type BaseClient struct {
	resty               *resty.Client
	errorUnmarshallerFn ErrorUnmarshaller
}

type Option func(*BaseClient)

func New(baseURL string, httpClient *http.Client, opts ...Option) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &BaseClient{}
	c.resty = resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultMaxRetryWaitTime).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddResponseMiddleware(logResponse).
		AddRetryConditions(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(c)
	}

	return c
}

func WithBaseURL(url string) Option {
	return func(c *BaseClient) {
		c.resty.SetBaseURL(url)
	}
}

func WithHeader(key string, value string) Option {
	return func(c *BaseClient) {
		c.resty.SetHeader(key, value)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *BaseClient) {
		if timeout > 0 {
			c.resty.SetTimeout(timeout)
		}
	}
}

func WithRetryCount(count int) Option {
	return func(c *BaseClient) {
		c.resty.SetRetryCount(count)
	}
}

func WithErrorUnmarshaller(unmarshallerFn ErrorUnmarshaller) Option {
	return func(c *BaseClient) {
		c.errorUnmarshallerFn = unmarshallerFn
	}
}

// ExecuteRequest sends body as JSON and decodes a successful JSON response into result.
func (c *BaseClient) ExecuteRequest(ctx context.Context, method string, path string, body any, result any) error {
	req := c.resty.R().
		SetContext(ctx).
		SetResult(result)

	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() {
		if c.errorUnmarshallerFn != nil {
			return c.errorUnmarshallerFn(resp.StatusCode(), resp.Bytes())
		}

		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

// ExecuteRequest is a typed helper around BaseClient.ExecuteRequest.
func ExecuteRequest[T any](ctx context.Context, c *BaseClient, method string, path string, body any) (*T, error) {
	var result T
	if err := c.ExecuteRequest(ctx, method, path, body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func logResponse(_ *resty.Client, r *resty.Response) error {
	req := r.Request
	ctx := req.Context()

	log.FromContext(ctx).DebugContext(ctx, "performed HTTP request",
		slog.String("http.url", req.URL),
		slog.String("http.method", req.Method),
		slog.Int("http.status_code", r.StatusCode()),
		slog.Duration("http.duration", r.ReceivedAt().Sub(req.Time)),
		slog.Any("err", r.Err),
	)

	return nil
}
