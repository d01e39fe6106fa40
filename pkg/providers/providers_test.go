package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/domain"
)

func TestEmbeddingClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a creator bio", body.Input)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "secret", "text-embed-1", time.Second)
	vec, err := client.Embed(context.Background(), "a creator bio")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbeddingClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := NewEmbeddingClient(srv.URL, "", "m", time.Second)
	_, err := client.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalTransient)
}

func TestLLMClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "override-model", body.Model)
		assert.Len(t, body.Messages, 1)
		_ = json.NewEncoder(w).Encode(completionResponse{
			Choices: []completionChoice{{Message: completionMessage{Role: "assistant", Content: `{"score": 7}`}}},
		})
	}))
	defer srv.Close()

	client := NewLLMClient(srv.URL, "", "default-model", time.Second)
	out, err := client.Complete(context.Background(), "override-model", "prompt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 7}`, out)
}

func TestLLMClientFallsBackToDefaultModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		_ = json.NewEncoder(w).Encode(completionResponse{Choices: []completionChoice{{Message: completionMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	client := NewLLMClient(srv.URL, "", "default-model", time.Second)
	_, err := client.Complete(context.Background(), "", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "default-model", gotModel)
}

func TestRerankClientRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 2, body.TopK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 1, "score": 0.9}},
		})
	}))
	defer srv.Close()

	client := NewRerankClient(srv.URL, "", time.Second)
	out, err := client.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestBrightdataClientTriggerStatusDownload(t *testing.T) {
	var triggeredDataset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/trigger":
			triggeredDataset = r.URL.Query().Get("dataset_id")
			assert.Equal(t, "true", r.URL.Query().Get("include_errors"))
			var body []map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body, 2)
			_ = json.NewEncoder(w).Encode(map[string]string{"snapshot_id": "snap-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/progress/snap-1":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		case r.Method == http.MethodGet && r.URL.Path == "/snapshot/snap-1":
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			_ = json.NewEncoder(w).Encode([]map[string]any{{"account": "creator1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewBrightdataClient(srv.URL, "secret", map[domain.Platform]string{
		domain.PlatformInstagram: "ds-ig",
	}, time.Second)

	id, err := client.TriggerSnapshot(context.Background(), domain.PlatformInstagram, []string{
		"https://instagram.com/a", "https://instagram.com/b",
	})
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)
	assert.Equal(t, "ds-ig", triggeredDataset)

	status, err := client.SnapshotStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ready", status)

	rows, err := client.DownloadSnapshot(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "creator1", rows[0]["account"])
}

func TestBrightdataClientMissingDataset(t *testing.T) {
	client := NewBrightdataClient("http://unused.example", "secret", nil, time.Second)
	_, err := client.TriggerSnapshot(context.Background(), domain.PlatformTikTok, []string{"https://tiktok.com/@a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfigError)
}

func TestBatchAPIClientLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "batch", r.FormValue("purpose"))
			_, header, err := r.FormFile("file")
			require.NoError(t, err)
			assert.Equal(t, "chunk_001.jsonl", header.Filename)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "file-in"})
		case r.Method == http.MethodPost && r.URL.Path == "/batches":
			var body createBatchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "file-in", body.InputFileID)
			assert.Equal(t, "/v1/responses", body.Endpoint)
			assert.Equal(t, "24h", body.CompletionWindow)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "batch-1", "status": "validating"})
		case r.Method == http.MethodGet && r.URL.Path == "/batches/batch-1":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id": "batch-1", "status": "completed", "output_file_id": "file-out",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/files/file-out/content":
			_, _ = w.Write([]byte(`{"custom_id":"profile-x"}` + "\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewBatchAPIClient(srv.URL, "secret", time.Second)

	fileID, err := client.UploadFile(context.Background(), "chunk_001.jsonl", []byte(`{"custom_id":"profile-x"}`))
	require.NoError(t, err)
	assert.Equal(t, "file-in", fileID)

	batchID, status, err := client.CreateBatch(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batchID)
	assert.Equal(t, "validating", status)

	status, outputFileID, err := client.RetrieveBatch(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	assert.Equal(t, "file-out", outputFileID)

	content, err := client.DownloadFile(context.Background(), outputFileID)
	require.NoError(t, err)
	assert.Contains(t, string(content), "profile-x")
}
