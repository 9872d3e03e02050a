package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultFetchTimeout bounds a single key-store download.
const DefaultFetchTimeout = 10 * time.Second

const maxDocumentBytes = 1 << 20

// Response is the part of an HTTP response the cache cares about.
type Response struct {
	Status int
	Body   []byte
	ETag   string
}

// Fetcher downloads a key-store document. etag is sent as If-None-Match when
// not empty.
type Fetcher interface {
	Get(ctx context.Context, url, etag string) (*Response, error)
}

// HTTPFetcher is the default Fetcher, a plain GET with a client timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests fail after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Get(ctx context.Context, url, etag string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("document larger than %d bytes", maxDocumentBytes)
	}
	return &Response{
		Status: resp.StatusCode,
		Body:   body,
		ETag:   resp.Header.Get("ETag"),
	}, nil
}
