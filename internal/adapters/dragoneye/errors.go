package dragoneye

import (
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// HTTPError is a completed round trip with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func newHTTPError(res *resty.Response) *HTTPError {
	body := res.String()
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "..."
	}
	return &HTTPError{
		Method:     res.Request.Method,
		URL:        redactQuery(res.Request.URL),
		StatusCode: res.StatusCode(),
		Body:       body,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// redactQuery drops the query string, which may carry signatures.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
