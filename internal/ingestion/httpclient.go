package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBodySize bounds how much of a non-2xx response body is read
// back into the error message.
const maxErrorBodySize = 64 * 1024

// HTTPClient is the production SDMX fetch client (§6.1): it issues a GET
// against the ISTAT SDMX REST dataflow endpoint and adapts the response
// into the FetchResult shape the pipeline expects. The upstream SDMX
// service itself is out of scope (§1); this is the minimal real
// implementation of the documented interface.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL with the given
// request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Fetch implements Client. A non-2xx response or a request-level error
// (timeout, connection reset) is reported as {success:false,
// error_message}, per §6.1 and §7's "transient upstream" error kind —
// the pipeline's retry/backoff loop decides what to do with it.
func (c *HTTPClient) Fetch(ctx context.Context, datasetID string) (FetchResult, error) {
	url := fmt.Sprintf("%s/data/%s", c.BaseURL, datasetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("build sdmx fetch request for %s: %w", datasetID, err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return FetchResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return FetchResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("sdmx fetch %s: status %d: %s", datasetID, resp.StatusCode, string(body)),
		}, nil
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{Success: false, ErrorMessage: err.Error()}, nil
	}

	return FetchResult{
		Success: true,
		Status:  "success",
		Content: content,
		Size:    len(content),
	}, nil
}
