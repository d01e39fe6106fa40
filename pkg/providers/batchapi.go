package providers

import (
	"context"
	"fmt"
	"time"
)

// batchEndpoint and batchWindow are fixed: every batch is
// created against the /v1/responses endpoint with a 24h completion window.
const (
	batchEndpoint = "/v1/responses"
	batchWindow   = "24h"
)

// BatchAPIClient implements ingest.BatchAPIClient against a remote
// OpenAI-batch-API-shaped endpoint: upload a JSONL request file, create a
// batch against it, poll its status, and download the completed output
// file. Unlike LLMClient/EmbeddingClient this needs verbs postJSON can't
// express (multipart upload, plain GET, raw download), so it reaches past
// baseClient.postJSON into the lower-level helpers in http.go.
type BatchAPIClient struct {
	base baseClient
}

func NewBatchAPIClient(baseURL, apiKey string, timeout time.Duration) *BatchAPIClient {
	return &BatchAPIClient{base: newBaseClient(baseURL, apiKey, timeout)}
}

type uploadedFile struct {
	ID string `json:"id"`
}

// UploadFile uploads one chunk's JSONL request file with purpose "batch".
func (c *BatchAPIClient) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var resp uploadedFile
	fields := map[string]string{"purpose": "batch"}
	if err := c.base.postMultipart(ctx, "/files", "file", filename, content, fields, &resp); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("upload file: empty file id in response")
	}
	return resp.ID, nil
}

type batchObject struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
}

type createBatchRequest struct {
	InputFileID      string `json:"input_file_id"`
	Endpoint         string `json:"endpoint"`
	CompletionWindow string `json:"completion_window"`
}

// CreateBatch creates a batch against the uploaded input file, returning
// the provider's batch id and initial status.
func (c *BatchAPIClient) CreateBatch(ctx context.Context, inputFileID string) (id, status string, err error) {
	req := createBatchRequest{InputFileID: inputFileID, Endpoint: batchEndpoint, CompletionWindow: batchWindow}
	var resp batchObject
	if err := c.base.postJSON(ctx, "/batches", req, &resp); err != nil {
		return "", "", fmt.Errorf("create batch: %w", err)
	}
	if resp.ID == "" {
		return "", "", fmt.Errorf("create batch: empty batch id in response")
	}
	return resp.ID, resp.Status, nil
}

// RetrieveBatch polls a batch's current status and, once available, its
// output file id.
func (c *BatchAPIClient) RetrieveBatch(ctx context.Context, batchID string) (status, outputFileID string, err error) {
	var resp batchObject
	if err := c.base.getJSON(ctx, "/batches/"+batchID, &resp); err != nil {
		return "", "", fmt.Errorf("retrieve batch %s: %w", batchID, err)
	}
	return resp.Status, resp.OutputFileID, nil
}

// DownloadFile fetches a completed batch's raw JSONL output content.
func (c *BatchAPIClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	content, err := c.base.getRaw(ctx, "/files/"+fileID+"/content")
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return content, nil
}
