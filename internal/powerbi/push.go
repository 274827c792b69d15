package powerbi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// HTTPPushClient is a minimal PowerBI Service REST API client: push a
// delta's rows into a streaming dataset and read back usage counts. It
// implements PushClient; RefreshManager and Bridge treat a nil
// PushClient as "integration not configured" rather than requiring this
// type specifically.
type HTTPPushClient struct {
	BaseURL    string
	BearerToken string
	HTTPClient *http.Client
}

// NewHTTPPushClient builds a client against the PowerBI Service REST API.
func NewHTTPPushClient(baseURL, bearerToken string) *HTTPPushClient {
	return &HTTPPushClient{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// PushDelta posts rows to the PowerBI streaming dataset's rows endpoint.
func (c *HTTPPushClient) PushDelta(ctx context.Context, powerBIDatasetID string, rows []map[string]any) error {
	body, err := json.Marshal(map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("marshal push delta payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1.0/myorg/datasets/%s/rows", c.BaseURL, powerBIDatasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push delta request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("push delta to powerbi dataset %s: %w", powerBIDatasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push delta to powerbi dataset %s: status %d", powerBIDatasetID, resp.StatusCode)
	}
	return nil
}

// usageStatsResponse is the subset of the PowerBI Service's dataset
// metadata response this client cares about.
type usageStatsResponse struct {
	ReportCount    int `json:"reportCount"`
	DashboardCount int `json:"dashboardCount"`
}

// UsageStats fetches report/dashboard counts referencing the dataset.
func (c *HTTPPushClient) UsageStats(ctx context.Context, powerBIDatasetID string) (int, int, error) {
	url := fmt.Sprintf("%s/v1.0/myorg/datasets/%s/usage", c.BaseURL, powerBIDatasetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build usage stats request: %w", err)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch usage stats for powerbi dataset %s: %w", powerBIDatasetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, 0, fmt.Errorf("fetch usage stats for powerbi dataset %s: status %d", powerBIDatasetID, resp.StatusCode)
	}

	var out usageStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("decode usage stats response: %w", err)
	}
	return out.ReportCount, out.DashboardCount, nil
}
