package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Request is one outbound delivery handed to the transport.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// Result is the transport-level outcome of a delivery attempt. A non-2xx
// status is a delivery failure but not a transport error.
type Result struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Success reports whether the result counts as a delivered attempt.
func (r *Result) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs the actual network I/O for delivery attempts. Request
// timeouts are the transport's responsibility and surface here only as
// errors, which the engine records as failed attempts.
type Transport interface {
	Deliver(ctx context.Context, req *Request) (*Result, error)
}

// HTTPTransport delivers requests over plain HTTP.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Deliver(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The response body is part of the attempt audit trail but is capped so
	// a misbehaving receiver cannot bloat delivery records.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
