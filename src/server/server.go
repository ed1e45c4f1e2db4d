// Package server exposes the question answering service over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	agent "github.com/Protocol-Lattice/go-dataviz-agent"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/dataset"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/metrics"
)

const (
	uploadField           = "csv_file"
	uploadSuccessMessage  = "CSV uploaded successfully"
	defaultMaxUploadBytes = 10 << 20
)

// Options configure the HTTP layer.
type Options struct {
	Service        *agent.Service
	Logger         logging.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
	SampleSize     int
	// MetricsPath exposes Prometheus metrics when non-empty.
	MetricsPath string
	// StaticDir is served under /docs/ when non-empty.
	StaticDir string
}

type Server struct {
	svc     *agent.Service
	logger  logging.Logger
	opts    Options
	handler http.Handler
}

type queryRequest struct {
	Prompt string `json:"prompt"`
}

type textResponse struct {
	Response string `json:"response"`
	Status   string `json:"status,omitempty"`
}

type chartResponse struct {
	Specification any    `json:"specification"`
	Description   string `json:"description"`
}

type uploadResponse struct {
	Message string   `json:"message"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server requires a service")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		svc:    opts.Service,
		logger: opts.Logger.With(map[string]any{"component": "http"}),
		opts:   opts,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.observe)
	router.HandleFunc("/upload_csv", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.MetricsPath != "" {
		router.Handle(s.opts.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	}
	if s.opts.StaticDir != "" {
		router.PathPrefix("/docs/").Handler(http.StripPrefix("/docs/", http.FileServer(http.Dir(s.opts.StaticDir))))
	}

	return cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if snap := s.svc.Store().Current(); snap != nil {
		body["dataset_id"] = snap.ID()
		body["columns"] = snap.Columns()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		metrics.DatasetUploads.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadBytes)})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		metrics.DatasetUploads.WithLabelValues("rejected").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadBytes)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected a multipart/form-data upload: " + err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	header := uploadedFile(r.MultipartForm)
	if header == nil {
		metrics.DatasetUploads.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file provided in field " + uploadField})
		return
	}
	file, err := header.Open()
	if err != nil {
		metrics.DatasetUploads.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "cannot open upload"})
		return
	}
	defer file.Close()

	snap, err := dataset.ReadCSV(file, dataset.LoadOptions{SampleSize: s.opts.SampleSize})
	if err == nil && snap.Empty() {
		err = errors.New("no data rows")
	}
	if err != nil {
		metrics.DatasetUploads.WithLabelValues("invalid").Inc()
		s.logger.Warn("rejected csv upload", map[string]any{"file": header.Filename, "error": err})
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid CSV: " + err.Error()})
		return
	}

	s.svc.Upload(snap)
	metrics.DatasetUploads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, uploadResponse{
		Message: uploadSuccessMessage,
		Columns: snap.Columns(),
		Rows:    snap.TotalRows(),
	})
}

// uploadedFile prefers the csv_file field and falls back to the first file
// part in field-name order.
func uploadedFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[uploadField]; len(files) > 0 {
		return files[0]
	}
	names := make([]string, 0, len(form.File))
	for name := range form.File {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if files := form.File[name]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be JSON with a prompt field"})
		return
	}

	answer, err := s.svc.Ask(r.Context(), req.Prompt)
	if err != nil {
		s.writeAskError(w, err)
		return
	}

	switch answer.Kind {
	case agent.AnswerChart:
		writeJSON(w, http.StatusOK, chartResponse{Specification: answer.Chart, Description: answer.Description})
	case agent.AnswerIrrelevant, agent.AnswerIncomplete:
		writeJSON(w, http.StatusOK, textResponse{Response: answer.Text, Status: string(answer.Kind)})
	default:
		writeJSON(w, http.StatusOK, textResponse{Response: answer.Text})
	}
}

func (s *Server) writeAskError(w http.ResponseWriter, err error) {
	var (
		gerr *agent.GateError
		merr *agent.ModelServiceError
	)
	switch {
	case errors.Is(err, agent.ErrNoDataset):
		writeJSON(w, http.StatusOK, textResponse{Response: agent.NoDatasetMessage})
	case errors.Is(err, agent.ErrEmptyPrompt):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &gerr), errors.As(err, &merr):
		s.logger.Error("model service failure", map[string]any{"error": err})
		writeJSON(w, http.StatusBadGateway, textResponse{Response: "Error calling the language model: " + err.Error()})
	default:
		s.logger.Error("query failed", map[string]any{"error": err})
		writeJSON(w, http.StatusInternalServerError, textResponse{Response: "Internal error: " + err.Error()})
	}
}

// observe records request metrics and an access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if strings.HasPrefix(route, "/docs/") {
			route = "/docs/"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.logger.Info("http request", map[string]any{
			"method":      r.Method,
			"route":       route,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
