package reddit

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledZap adapts a zap logger to retryablehttp.LeveledLogger.
type leveledZap struct {
	inner *zap.SugaredLogger
}

// Error is logged as a warning since the request is usually retried.
func (l leveledZap) Error(msg string, keysAndValues ...any) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...any) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Info(msg string, keysAndValues ...any) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...any) {
	l.inner.Debugw(msg, keysAndValues...)
}

// ClientOption tunes the retrying HTTP client.
type ClientOption func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(waitMin, waitMax time.Duration) ClientOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

// NewHTTPClient returns a standard client that retries connection errors
// and 5xx responses (except 501). 429 is returned to the caller.
func NewHTTPClient(logger *zap.Logger, timeout time.Duration, opts ...ClientOption) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledZap{inner: logger.Named("http").Sugar()})
	rc.CheckRetry = retryPolicy

	for _, opt := range opts {
		opt(rc)
	}

	client := rc.StandardClient()
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client.Timeout = timeout
	return client
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
