package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
)

// JobService is what the HTTP layer needs from the frame sampling use case.
type JobService interface {
	Run(ctx context.Context, req usecase.SampleRequest) (*usecase.JobResult, error)
	Submit(ctx context.Context, req usecase.SampleRequest) (*entity.Job, error)
	Job(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ArtifactURL(ctx context.Context, id uuid.UUID) (string, error)
	SamplingConfig() sampling.Config
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

type ServerConfig struct {
	Port    int
	Service JobService
	Tables  sampling.Tables
	Logger  *zap.Logger
	// SyncTimeout bounds a synchronous POST /v1/jobs.
	SyncTimeout time.Duration
	// JobRateLimit caps POST /v1/jobs in requests per second; zero disables it.
	JobRateLimit float64
	JobRateBurst int
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      otelhttp.NewHandler(NewRouter(cfg), "fiapx-frame-sampler-api"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
