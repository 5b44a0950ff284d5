package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/sitequant/takeoff/internal/export"
	"github.com/sitequant/takeoff/internal/pipeline"
	"github.com/sitequant/takeoff/internal/repository"
)

// Server exposes the pipeline's outward surface over HTTP.
type Server struct {
	svc      *pipeline.Service
	projects repository.ProjectStore
	exporter *export.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func New(svc *pipeline.Service, projects repository.ProjectStore, exporter *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      svc,
		projects: projects,
		exporter: exporter,
		validate: validator.New(),
		logger:   logger,
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects/{projectID}/extract", s.handleSubmitBatch)
		r.Get("/projects/{projectID}/status", s.handleProjectStatus)
		r.Get("/projects/{projectID}/items", s.handleProjectItems)
		r.Get("/projects/{projectID}/export", s.handleProjectExport)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Post("/files/{fileID}/retry", s.handleRetryFile)
	})
	return r
}
