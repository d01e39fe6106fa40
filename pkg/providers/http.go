// Package providers implements the HTTP-based external collaborators that
// the domain packages depend on through narrow interfaces: search.EmbeddingClient,
// fitscore.LLMClient, rerank.Transport, and brightdata.SnapshotClient.
// Every client here is a thin "POST JSON, decode JSON" wrapper over a
// shared baseClient (base URL + *http.Client + bearer-token auth), since
// all of creatord's external contracts (embedding, LLM, reranker, vendor)
// are plain HTTP services.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/creatorindex/creatord/pkg/apperr"
)

// baseClient holds what every provider client needs: where to send requests,
// how to authenticate, and the *http.Client to send them with. Concrete
// clients embed it and add endpoint-specific request/response shapes.
type baseClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newBaseClient(baseURL, apiKey string, timeout time.Duration) baseClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return baseClient{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// postJSON marshals body, POSTs it to path, and decodes the response into
// out. A 429 or 5xx response is reported as ErrExternalTransient (the only
// class the callers' fnkit.Do classifiers retry); any other non-2xx is
// ErrExternalPermanent.
func (c baseClient) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrExternalTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", apperr.ErrExternalTransient, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", apperr.ErrExternalTransient, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", apperr.ErrExternalPermanent, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrExternalPermanent, err)
	}
	return nil
}

// do sends req with the client's auth header attached and classifies the
// response the same way postJSON does, returning the raw body on success.
// The batch API client builds on this for the verbs postJSON can't express
// (multipart upload, plain GET, raw content download).
func (c baseClient) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrExternalTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", apperr.ErrExternalTransient, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d: %s", apperr.ErrExternalTransient, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", apperr.ErrExternalPermanent, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// getJSON issues a GET against path and decodes the JSON response into out.
func (c baseClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrExternalPermanent, err)
	}
	return nil
}

// getRaw issues a GET against path and returns the response body verbatim,
// for endpoints that return raw file content rather than JSON.
func (c baseClient) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

// postMultipart uploads a single named file as multipart/form-data, along
// with any additional plain form fields, and decodes the JSON response.
func (c baseClient) postMultipart(ctx context.Context, path, fieldName, filename string, content []byte, fields map[string]string, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("build multipart field %s: %w", k, err)
		}
	}
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		return fmt.Errorf("build multipart file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write multipart file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrExternalPermanent, err)
	}
	return nil
}
