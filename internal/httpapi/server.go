package httpapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/batch"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
)

type BatchService interface {
	SubmitBatch(ctx context.Context, raw []batch.RawFile) (*jobs.Job, error)
	GetJobStatus(ctx context.Context, id string) (*jobs.Job, error)
	SubscribeToProgress(ctx context.Context, id string) (*batch.ProgressStream, error)
	ProcessUpload(ctx context.Context, f batch.RawFile) (*batch.UploadResult, error)
}

type AnalysisService interface {
	CreateFromTexts(ctx context.Context, texts []string) (*analysis.Analysis, error)
	List(ctx context.Context) ([]*analysis.Analysis, error)
	Get(ctx context.Context, id string) (*analysis.Analysis, error)
	Delete(ctx context.Context, id string) error
}

type FileService interface {
	List(ctx context.Context) ([]*files.Record, error)
	Open(ctx context.Context, id string) (*files.Record, io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

type Server struct {
	batches  BatchService
	analyses AnalysisService
	files    FileService

	uiEnabled   bool
	uiStaticDir string
	keepAlive   time.Duration

	router *chi.Mux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithKeepAlive sets how often an idle event stream sends a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(batches BatchService, analyses AnalysisService, fileSvc FileService, opts ...Option) *Server {
	s := &Server{
		batches:   batches,
		analyses:  analyses,
		files:     fileSvc,
		keepAlive: 15 * time.Second,
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/batch-uploads", func(r chi.Router) {
			r.Post("/", s.handleCreateBatch)
			r.Get("/{id}", s.handleGetBatch)
			r.Get("/{id}/events", s.handleBatchEvents)
		})

		r.Post("/uploads", s.handleUpload)

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.handleCreateAnalysis)
			r.Get("/", s.handleListAnalyses)
			r.Get("/{id}", s.handleGetAnalysis)
			r.Delete("/{id}", s.handleDeleteAnalysis)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Get("/download/{id}", s.handleDownloadFile)
			r.Delete("/{id}", s.handleDeleteFile)
		})
	})

	r.NotFound(s.handleStatic)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeErrorMessage(w, r, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
