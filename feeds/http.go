package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 10 * time.Second

// UserAgent is sent with every upstream request.
const UserAgent = "homepage (+https://sigurdhsson.org)"

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

// NewHTTPClient returns a pooled client for upstream APIs.
func NewHTTPClient(timeout time.Duration) *http.Client {
	c := cleanhttp.DefaultPooledClient()
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}

// Fetch performs a GET against rawURL and returns the response body. Any
// non-2xx response is an *Error carrying the upstream status and body.
// Transport errors are reported without the request URL.
func Fetch(ctx context.Context, client *http.Client, source, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Source: source, Msg: "could not build request", Err: StripURL(err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Source: source, Msg: "HTTP request failed", Err: StripURL(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Source: source, Msg: "could not read response", Err: StripURL(err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Source: source,
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("%s returned %s", source, resp.Status),
			Body:   body,
		}
	}
	return body, nil
}
