package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/creatorindex/creatord/pkg/apperr"
)

// handleSearch enqueues a search request (POST /search/).
func (s *Server) handleSearch(c *gin.Context) {
	var body SearchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncSearch, body)
}

// handleSimilar enqueues a find-similar request (POST /search/similar).
func (s *Server) handleSimilar(c *gin.Context) {
	var body SimilarRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncSimilar, body)
}

// handleCategory enqueues a category-scoped search (POST /search/category).
func (s *Server) handleCategory(c *gin.Context) {
	var body CategoryRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncCategory, body)
}

// handlePipeline enqueues a full search/rerank/brightdata/llm_fit run.
func (s *Server) handlePipeline(c *gin.Context) {
	var body PipelineRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncPipeline, body)
}

// handlePipelineBrightdata enqueues a brightdata-only refresh over a
// caller-supplied profile list (POST /search/pipeline/brightdata).
func (s *Server) handlePipelineBrightdata(c *gin.Context) {
	var body ProfilesOnlyRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncPipelineBrightdata, body)
}

// handlePipelineLLM enqueues a fit-scoring-only run over a caller-supplied
// profile list (POST /search/pipeline/llm).
func (s *Server) handlePipelineLLM(c *gin.Context) {
	var body ProfilesOnlyRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Invalid("%s", err.Error()))
		return
	}
	s.enqueue(c, FuncPipelineLLM, body)
}

// handleLookupUsername is the one synchronous read in the public API
// (GET /search/username/{u}): a direct profile lookup, no job involved.
func (s *Server) handleLookupUsername(c *gin.Context) {
	if s.searchEngine == nil {
		writeError(c, apperr.Config("no search engine is configured"))
		return
	}
	username := c.Param("u")
	profile, err := s.searchEngine.LookupByUsername(c.Request.Context(), username)
	if err != nil {
		if apperr.HTTPStatus(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, LookupResponse{Success: false})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LookupResponse{Success: true, Result: profile})
}

// handleJobSnapshot returns the durable record for a job (GET /job/{id}).
func (s *Server) handleJobSnapshot(c *gin.Context) {
	rec, err := s.store.Snapshot(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// sseHeartbeatInterval keeps intermediate proxies from closing an idle
// long-poll stream between pipeline stages.
const sseHeartbeatInterval = 15 * time.Second

// handleJobStream streams a job's progress as Server-Sent Events (GET
// /job/{id}/stream), replaying the durable backlog since ?since_seq=
// before forwarding live events.
func (s *Server) handleJobStream(c *gin.Context) {
	jobID := c.Param("id")
	var sinceSeq int64
	if raw := c.Query("since_seq"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			sinceSeq = v
		}
	}

	result, err := s.bus.Stream(c.Request.Context(), jobID, s.store, sinceSeq)
	if err != nil {
		writeError(c, err)
		return
	}
	defer result.Detach()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if result.Overflow {
		sse.Encode(c.Writer, sse.Event{Event: "catchup.overflow", Data: "{}"})
		c.Writer.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-result.Events:
			if !ok {
				return false
			}
			_ = sse.Encode(w, sse.Event{
				Event: ev.Stage,
				Id:    strconv.FormatInt(ev.Seq, 10),
				Data:  json.RawMessage(ev.Data),
			})
			return true
		case <-heartbeat.C:
			// A bare SSE comment line: keeps intermediaries from timing the
			// connection out without delivering an event to the client.
			_, _ = io.WriteString(w, ": heartbeat\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleHealth aggregates dataset reachability, queue depths, and worker
// pool occupancy into one payload (GET /health).
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout())
	defer cancel()

	reachable := false
	var profileColl, postsColl string
	if s.vectorStore != nil {
		reachable = s.vectorStore.Healthy(ctx)
		profileColl, postsColl = s.vectorStore.Collections()
	}

	queues := make([]QueueHealth, 0, len(s.queueNames))
	for _, q := range s.queueNames {
		queues = append(queues, QueueHealth{Name: q, Depth: s.store.QueueDepth(q)})
	}

	status := "ok"
	if !reachable {
		status = "degraded"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status: status,
		Dataset: DatasetHealth{
			ProfileCollection: profileColl,
			PostsCollection:   postsColl,
			Reachable:         reachable,
		},
		Queues: queues,
		Workers: WorkerPoolHealth{
			Active: s.pool.ActiveCount(),
			Total:  s.pool.WorkerCount(),
		},
	})
}

// handleImageProxy fetches a vendor profile image on behalf of a browser
// client (GET /internal/images?url=...), streaming it back with the
// upstream content type. The fetcher enforces the SSRF guard: allow-listed
// hosts only, no privately-routable resolved addresses, every redirect hop
// re-checked.
func (s *Server) handleImageProxy(c *gin.Context) {
	if s.images == nil {
		writeError(c, apperr.Config("no image fetcher is configured"))
		return
	}
	rawURL := c.Query("url")
	if rawURL == "" {
		writeError(c, apperr.Invalid("url query parameter is required"))
		return
	}
	body, contentType, err := s.images.Fetch(c.Request.Context(), rawURL)
	if err != nil {
		writeError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, body)
}

// debugWSMessage is one frame sent over the internal debug websocket: a raw
// progress event plus the job's terminal status once reached.
type debugWSMessage struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Stage     string          `json:"stage"`
	Data      json.RawMessage `json:"data"`
}

// handleJobDebugWS upgrades to a raw websocket tailing a job's live event
// stream verbatim, for operator debugging rather than client consumption —
// the public contract is the SSE endpoint above.
func (s *Server) handleJobDebugWS(c *gin.Context) {
	jobID := c.Param("id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := c.Request.Context()
	result, err := s.bus.Stream(ctx, jobID, s.store, 0)
	if err != nil {
		conn.Close(websocket.StatusInternalError, err.Error())
		return
	}
	defer result.Detach()

	for ev := range result.Events {
		data, err := json.Marshal(debugWSMessage{Seq: ev.Seq, Timestamp: ev.Timestamp, Stage: ev.Stage, Data: ev.Data})
		if err != nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
}
