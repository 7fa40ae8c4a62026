// Package server exposes the research pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/export"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/rag"
	"github.com/xhad/veritas/pkg/research"
)

const maxBodyBytes = 1 << 20

// User-facing error messages. Details only go to the log.
const (
	msgInvalidMessage = "Valid message is required"
	msgInvalidQuery   = "Valid query is required"
	msgBadDocument    = "Unable to process the provided document"
	msgNoDocuments    = "No document has been uploaded yet. Please upload a file to begin."
	msgInternal       = "Failed to process request"
	msgExportInput    = "Data and format are required"
	msgExportFormat   = "Invalid format"
	msgExportPDF      = "PDF export is not supported"
	msgExportFailed   = "Failed to export"
)

// Answerer runs the research pipeline for one request.
type Answerer interface {
	RunWithProgress(ctx context.Context, req research.Request, progress func(research.Stage)) (*research.Response, error)
}

// DocumentQuerier searches ingested documents.
type DocumentQuerier interface {
	Query(ctx context.Context, text string) ([]models.DocumentChunk, error)
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	// Now stamps export filenames. Defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	config    Config
	answerer  Answerer
	documents DocumentQuerier
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func New(config Config, answerer Answerer, documents DocumentQuerier) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 2 * time.Minute
	}
	config.Logger = logging.OrNop(config.Logger)
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Server{
		config:    config,
		answerer:  answerer,
		documents: documents,
		logger:    config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Be careful with this in production
			},
		},
	}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.logRequests(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /api/export", s.logRequests(http.HandlerFunc(s.handleExport)))
	mux.Handle("POST /api/documents/search", s.logRequests(http.HandlerFunc(s.handleDocumentSearch)))
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req research.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidMessage)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	resp, err := s.answerer.RunWithProgress(ctx, req, nil)
	if err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type exportRequest struct {
	Data   *export.Data `json:"data"`
	Format string       `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(w, r, &req); err != nil || req.Data == nil || req.Format == "" {
		writeError(w, http.StatusBadRequest, msgExportInput)
		return
	}
	if req.Format == "pdf" {
		writeError(w, http.StatusBadRequest, msgExportPDF)
		return
	}

	report, err := export.Render(*req.Data, export.Format(req.Format), s.config.Now())
	if errors.Is(err, export.ErrUnsupportedFormat) {
		writeError(w, http.StatusBadRequest, msgExportFormat)
		return
	}
	if err != nil {
		s.logger.Error("Export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgExportFailed)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report.Body))
}

type documentSearchRequest struct {
	Query string `json:"query"`
}

type documentSearchResponse struct {
	DocumentChunks []models.DocumentChunk `json:"documentChunks"`
}

func (s *Server) handleDocumentSearch(w http.ResponseWriter, r *http.Request) {
	var req documentSearchRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, msgInvalidQuery)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	chunks, err := s.documents.Query(ctx, req.Query)
	if err != nil {
		status, msg := s.classify(err)
		writeError(w, status, msg)
		return
	}
	if chunks == nil {
		chunks = []models.DocumentChunk{}
	}
	writeJSON(w, http.StatusOK, documentSearchResponse{DocumentChunks: chunks})
}

// classify maps a pipeline error to a status and a message safe to show.
func (s *Server) classify(err error) (int, string) {
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		return http.StatusBadRequest, msgInvalidMessage
	case errors.Is(err, research.ErrDocumentIngest):
		s.logger.Warn("Document rejected", zap.Error(err))
		return http.StatusBadRequest, msgBadDocument
	case errors.Is(err, rag.ErrNoDocuments):
		return http.StatusBadRequest, msgNoDocuments
	default:
		s.logger.Error("Request failed", zap.Error(err))
		return http.StatusInternalServerError, msgInternal
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
