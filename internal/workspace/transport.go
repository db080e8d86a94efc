package workspace

import (
	"net/http"

	"contentflow/internal/retry"
)

// statusTransport turns non-2xx answers into errors before the notion client
// sees them: 429 becomes retry.RateLimitError with the server's Retry-After,
// 5xx and 408 stay retryable, and other 4xx are permanent.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := retry.CheckResponse(serviceNotion, resp); err != nil {
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return resp, nil
}
