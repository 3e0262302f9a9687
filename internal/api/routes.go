package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/usecase"
)

const maxBodyBytes = 1 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/healthz", healthHandler())

	r.Route("/v1", func(r chi.Router) {
		r.With(RateLimitMiddleware(cfg.JobRateLimit, cfg.JobRateBurst)).Post("/jobs", createJobHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/artifact", artifactHandler(cfg))
		r.Get("/plan", planHandler(cfg))
	})

	return r
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func createJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		in := usecase.SampleRequest{VideoURL: req.VideoURL, NotifyTo: req.NotifyTo}

		if req.Async {
			job, err := cfg.Service.Submit(r.Context(), in)
			if err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			WriteJSON(w, http.StatusAccepted, JobToResponse(job))
			return
		}

		ctx := r.Context()
		if cfg.SyncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.SyncTimeout)
			defer cancel()
		}

		res, err := cfg.Service.Run(ctx, in)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		resp := JobToResponse(res.Job)
		resp.ArtifactURL = res.ArtifactURL
		resp.Phases = phasesToResponse(res.Selection, res.Job.FrameRefs)
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		job, err := cfg.Service.Job(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}
		u, err := cfg.Service.ArtifactURL(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		duration, err := strconv.ParseFloat(q.Get("duration"), 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "duration must be a number of seconds", "BAD_REQUEST")
			return
		}

		sc := cfg.Service.SamplingConfig()
		if v := q.Get("table"); v != "" {
			table, err := cfg.Tables.Lookup(v)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			sc.Table = table
		}
		if v := q.Get("budget"); v != "" {
			budget, err := strconv.Atoi(v)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "budget must be an integer", "BAD_REQUEST")
				return
			}
			sc.Budget = budget
		}

		plan, err := sc.Plan(duration)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, plan)
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id", "BAD_REQUEST")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, sampling.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, sampling.ErrNoContent):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_CONTENT")
	case errors.Is(err, port.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.Is(err, usecase.ErrArtifactNotReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	default:
		logger.Error("request failed", zap.Error(err))
		WriteError(w, http.StatusBadGateway, err.Error(), "PROCESSING_FAILED")
	}
}
