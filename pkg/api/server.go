package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/creatorindex/creatord/pkg/apperr"
	"github.com/creatorindex/creatord/pkg/brightdata"
	"github.com/creatorindex/creatord/pkg/domain"
	"github.com/creatorindex/creatord/pkg/events"
	"github.com/creatorindex/creatord/pkg/jobs"
	"github.com/creatorindex/creatord/pkg/pipeline"
)

// ProfileLookup is the synchronous read path the HTTP layer exposes
// directly (GET /search/username/{u}). *search.Engine satisfies it.
type ProfileLookup interface {
	LookupByUsername(ctx context.Context, username string) (*domain.CanonicalProfile, error)
}

// DatasetChecker reports vector-store reachability and collection names
// for the health endpoint. *vectorstore.Store satisfies it.
type DatasetChecker interface {
	Healthy(ctx context.Context) bool
	Collections() (profile, posts string)
}

// Server holds every collaborator the HTTP layer needs and assembles the
// gin.Engine: a plain struct built via Set* wiring methods, validated once
// with ValidateWiring before the router starts accepting traffic.
type Server struct {
	orchestrator *pipeline.Orchestrator
	searchEngine ProfileLookup
	store        *jobs.Store
	pool         *jobs.Pool
	bus          *events.Broadcaster
	vectorStore  DatasetChecker
	images       *brightdata.ImageFetcher

	queueNames []string
}

func NewServer() *Server { return &Server{} }

func (s *Server) SetOrchestrator(o *pipeline.Orchestrator) *Server { s.orchestrator = o; return s }
func (s *Server) SetSearchEngine(e ProfileLookup) *Server          { s.searchEngine = e; return s }
func (s *Server) SetJobStore(store *jobs.Store) *Server            { s.store = store; return s }
func (s *Server) SetWorkerPool(p *jobs.Pool) *Server               { s.pool = p; return s }
func (s *Server) SetEventBus(b *events.Broadcaster) *Server        { s.bus = b; return s }
func (s *Server) SetVectorStore(v DatasetChecker) *Server          { s.vectorStore = v; return s }
func (s *Server) SetImageFetcher(f *brightdata.ImageFetcher) *Server { s.images = f; return s }
func (s *Server) SetQueueNames(names []string) *Server             { s.queueNames = names; return s }

// ValidateWiring reports every missing collaborator at once via
// errors.Join, rather than failing on the first nil field.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.orchestrator == nil {
		errs = append(errs, errors.New("orchestrator not wired"))
	}
	if s.searchEngine == nil {
		errs = append(errs, errors.New("search engine not wired"))
	}
	if s.store == nil {
		errs = append(errs, errors.New("job store not wired"))
	}
	if s.pool == nil {
		errs = append(errs, errors.New("worker pool not wired"))
	}
	if s.bus == nil {
		errs = append(errs, errors.New("event bus not wired"))
	}
	if len(s.queueNames) == 0 {
		errs = append(errs, errors.New("no queues declared"))
	}
	return errors.Join(errs...)
}

// NewRouter assembles the gin.Engine with every public and internal route.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.Default()
	r.Use(securityHeaders())

	searchGroup := r.Group("/search")
	searchGroup.POST("/", s.handleSearch)
	searchGroup.POST("/similar", s.handleSimilar)
	searchGroup.POST("/category", s.handleCategory)
	searchGroup.POST("/pipeline", s.handlePipeline)
	searchGroup.POST("/pipeline/brightdata", s.handlePipelineBrightdata)
	searchGroup.POST("/pipeline/llm", s.handlePipelineLLM)
	searchGroup.GET("/username/:u", s.handleLookupUsername)

	r.GET("/job/:id", s.handleJobSnapshot)
	r.GET("/job/:id/stream", s.handleJobStream)

	r.GET("/health", s.handleHealth)

	internal := r.Group("/internal")
	internal.GET("/jobs/:id/ws", s.handleJobDebugWS)
	internal.GET("/images", s.handleImageProxy)

	return r
}

func (s *Server) enqueue(c *gin.Context, funcID string, payload any) {
	queue := queueForFunc(funcID)
	rec, err := s.store.Enqueue(queue, funcID, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobEnvelope{JobID: rec.JobID, Queue: rec.QueueName, Status: string(rec.Status)})
}

func queueForFunc(funcID string) string {
	switch funcID {
	case FuncSearch, FuncSimilar, FuncCategory:
		return "search"
	default:
		return "pipeline"
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), ErrorResponse{Detail: err.Error()})
}

func healthTimeout() time.Duration { return 5 * time.Second }
