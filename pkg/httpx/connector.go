// Package httpx provides a small HTTP connector used by clients of the
// upload protocol: JSON and multipart requests against a base URL, with
// status codes mapped onto the shared error taxonomy.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lexichat/backend/internal/pkg/errs"
)

// Connector issues requests against a single base URL.
type Connector struct {
	baseURL    string
	httpClient *http.Client
}

// NewConnector creates a connector for the given base URL.
func NewConnector(baseURL string, opts ...Option) *Connector {
	return &Connector{
		baseURL:    baseURL,
		httpClient: newClient(opts...),
	}
}

// DoJSON sends reqBody as JSON and decodes the response into respBody.
// Either may be nil.
func (c *Connector) DoJSON(ctx context.Context, method, endpoint string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, respBody)
}

// DoMultipart builds a multipart body via prepareBody and posts it.
// The body is buffered per call, so peak memory is bounded by the size of a
// single part, not the whole file.
func (c *Connector) DoMultipart(ctx context.Context, method, endpoint string, prepareBody func(*multipart.Writer) error, respBody any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := prepareBody(writer); err != nil {
		return fmt.Errorf("prepare multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.do(req, respBody)
}

func (c *Connector) do(req *http.Request, respBody any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", errs.ErrUnavailable, ctxErr)
		}
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", errs.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if respBody != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP status onto the error taxonomy so that retry
// policies treat 429/5xx as transient and other 4xx as permanent.
func statusError(code int, body []byte) error {
	msg := fmt.Sprintf("HTTP %d: %s", code, truncate(body, 256))
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", errs.ErrRateLimited, msg)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", errs.ErrAuth, msg)
	case code == http.StatusRequestTimeout || code >= 500:
		return fmt.Errorf("%w: %s", errs.ErrUnavailable, msg)
	default:
		return fmt.Errorf("%w: %s", errs.ErrValidation, msg)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
