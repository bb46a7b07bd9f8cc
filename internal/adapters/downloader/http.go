package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	"dragoneye/internal/core/ports"
)

// HTTPDownloader implements ports.Fetcher using resty.
type HTTPDownloader struct {
	client *resty.Client
}

var _ ports.Fetcher = (*HTTPDownloader)(nil)

// NewHTTPDownloader creates a new HTTPDownloader. A zero timeout leaves
// downloads bounded only by the caller's context.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPDownloader{client: client}
}

// Fetch streams the media at mediaURL. The body is not buffered.
func (d *HTTPDownloader) Fetch(ctx context.Context, mediaURL string) (io.ReadCloser, string, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(mediaURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}

	body := res.RawBody()
	if !res.IsSuccess() {
		body.Close()
		return nil, "", fmt.Errorf("unexpected status code: %d", res.StatusCode())
	}

	return body, res.Header().Get("Content-Type"), nil
}
