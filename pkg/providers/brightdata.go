package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
)

// BrightdataClient implements brightdata.SnapshotClient against the
// BrightData datasets/v3 API: one dataset id per platform, a bearer token,
// and three endpoints (POST .../trigger, GET .../progress/{id},
// GET .../snapshot/{id}).
type BrightdataClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	datasetIDs map[domain.Platform]string
}

func NewBrightdataClient(baseURL, apiKey string, datasetIDs map[domain.Platform]string, timeout time.Duration) *BrightdataClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.brightdata.com/datasets/v3"
	}
	return &BrightdataClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		datasetIDs: datasetIDs,
	}
}

// TriggerSnapshot satisfies brightdata.SnapshotClient: one request object
// per URL (`{"url": "..."}`), dataset_id and include_errors as query
// params.
func (c *BrightdataClient) TriggerSnapshot(ctx context.Context, platform domain.Platform, profileURLs []string) (string, error) {
	datasetID, ok := c.datasetIDs[platform]
	if !ok || datasetID == "" {
		return "", apperr.Config("no BrightData dataset configured for platform %q", platform)
	}

	urlObjects := make([]map[string]string, len(profileURLs))
	for i, u := range profileURLs {
		urlObjects[i] = map[string]string{"url": u}
	}

	body, err := json.Marshal(urlObjects)
	if err != nil {
		return "", fmt.Errorf("marshal trigger body: %w", err)
	}

	q := url.Values{"dataset_id": {datasetID}, "include_errors": {"true"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build trigger request: %w", err)
	}
	c.setHeaders(req)

	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("trigger snapshot: %w", err)
	}
	if resp.SnapshotID == "" {
		return "", fmt.Errorf("%w: trigger response carried no snapshot_id", apperr.ErrExternalPermanent)
	}
	return resp.SnapshotID, nil
}

// SnapshotStatus satisfies brightdata.SnapshotClient via
// GET .../progress/{id}.
func (c *BrightdataClient) SnapshotStatus(ctx context.Context, snapshotID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/progress/"+url.PathEscape(snapshotID), nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req)

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("snapshot status: %w", err)
	}
	return resp.Status, nil
}

// DownloadSnapshot satisfies brightdata.SnapshotClient via
// GET .../snapshot/{id}?format=json; brightdata.Worker consumes the rows
// as []map[string]any.
func (c *BrightdataClient) DownloadSnapshot(ctx context.Context, snapshotID string) ([]map[string]any, error) {
	q := url.Values{"format": {"json"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/snapshot/"+url.PathEscape(snapshotID)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrExternalTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot body: %v", apperr.ErrExternalTransient, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", apperr.ErrExternalTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", apperr.ErrExternalPermanent, resp.StatusCode)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot rows: %v", apperr.ErrExternalPermanent, err)
	}
	return rows, nil
}

func (c *BrightdataClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *BrightdataClient) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrExternalTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", apperr.ErrExternalTransient, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", apperr.ErrExternalTransient, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", apperr.ErrExternalPermanent, resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
