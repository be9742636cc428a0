package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// Client is the process-wide outbound HTTP gateway. It owns a single pooled
// transport shared by every pipeline; callers hold a reference, the process
// owns the lifecycle (create at startup, Close at shutdown).
type Client struct {
	rc *resty.Client
}

// Option configures the gateway client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header applied to every call.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.rc.SetHeader("User-Agent", ua)
	}
}

// WithTransport replaces the underlying transport. Used by tests.
func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) {
		c.rc.SetTransport(t)
	}
}

// NewClient creates the shared gateway client with a pooled transport.
// Retries are owned by the retry package, not by resty.
func NewClient(opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	rc := resty.New().
		SetTransport(transport).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	c := &Client{rc: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is the gateway-level view of an HTTP response. Status
// interpretation is left to the caller; the gateway carries no business
// logic.
type Response struct {
	Status int
	Body   []byte
}

// Call issues a single HTTP request with a mandatory per-call timeout.
// The body is JSON-encoded when non-nil. Transport failures surface as
// *NetworkError; deadline hits surface as *TimeoutError.
func (c *Client) Call(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body any,
	timeout time.Duration,
) (*Response, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.rc.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		if isTimeout(err) {
			return nil, NewTimeoutError(method, url, err)
		}
		return nil, &NetworkError{Op: method, URL: url, Err: err}
	}

	return &Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}

// Close releases idle pooled connections. In-flight requests are unaffected.
func (c *Client) Close() {
	c.rc.GetClient().CloseIdleConnections()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NetworkError represents a failed outbound call: a transport-level failure
// (Status 0) or an HTTP error status attached by the caller.
type NetworkError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError is a NetworkError raised when the per-call timeout elapsed.
// Unwrapping yields the embedded NetworkError so errors.As matches both.
type TimeoutError struct {
	NetworkError
}

// NewTimeoutError creates a TimeoutError for the given call.
func NewTimeoutError(op, url string, err error) *TimeoutError {
	return &TimeoutError{NetworkError{Op: op, URL: url, Err: err}}
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out", e.Op, e.URL)
}

// Unwrap exposes the underlying NetworkError.
func (e *TimeoutError) Unwrap() error {
	return &e.NetworkError
}

// NewStatusError creates a NetworkError for a non-success HTTP status.
// Callers decide which statuses are errors; the gateway does not.
func NewStatusError(op, url string, status int, body []byte) *NetworkError {
	return &NetworkError{
		Op:     op,
		URL:    url,
		Status: status,
		Err:    fmt.Errorf("upstream returned %d: %s", status, truncateBody(body)),
	}
}

// truncateBody keeps error messages bounded when upstreams return large
// HTML error pages.
func truncateBody(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
