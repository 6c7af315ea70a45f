// Package chi exposes the pipeline over HTTP: run, health, and promotion
// endpoints plus Prometheus metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/logger"
	"github.com/kailas-cloud/fusegate/internal/metrics"
	"github.com/kailas-cloud/fusegate/internal/usecase/fusion"
	"github.com/kailas-cloud/fusegate/internal/usecase/gate"
	"github.com/kailas-cloud/fusegate/internal/usecase/pipeline"
)

// Error response codes returned in the JSON body.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeRateLimited      = "rate_limited"
	codeUpstreamError    = "upstream_error"
	codeModelError       = "model_provider_error"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the pipeline and gate services to HTTP handlers.
type Server struct {
	pipeline      *pipeline.Service
	gate          *gate.Service
	apiKeys       []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(pipe *pipeline.Service, gateSvc *gate.Service, apiKeys []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pipeline: pipe,
		gate:     gateSvc,
		apiKeys:  apiKeys,
		logger:   log,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidConfig, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamError),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrModelProviderError, http.StatusBadGateway, codeModelError),
	}
	return s
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/pipeline/run", s.handleRunPipeline)
		r.Post("/promotion/evaluate", s.handleEvaluatePromotion)
	})

	return r
}

// runRequest is the POST /v1/pipeline/run body.
type runRequest struct {
	Query            string       `json:"query"`
	Facets           []facetInput `json:"facets,omitempty"`
	Sentences        []string     `json:"sentences,omitempty"`
	RewriteAgreement *float64     `json:"rewrite_agreement,omitempty"`
	TopK             int          `json:"top_k,omitempty"`
}

type facetInput struct {
	ID             string  `json:"id"`
	RewrittenQuery string  `json:"rewritten_query"`
	NewDocCount    int     `json:"new_doc_count"`
	EntityOverlap  float64 `json:"entity_overlap"`
}

// runResponse wraps the pipeline result with the current health snapshot.
type runResponse struct {
	pipeline.Result
	Health healthSnapshot `json:"health"`
}

type healthSnapshot struct {
	State  gate.State         `json:"state"`
	Status domain.ProbeStatus `json:"status,omitempty"`
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must be >= 0")
		return
	}

	facets := make([]domain.Facet, len(req.Facets))
	for i, f := range req.Facets {
		facets[i] = domain.Facet{
			ID:             f.ID,
			RewrittenQuery: f.RewrittenQuery,
			NewDocCount:    f.NewDocCount,
			EntityOverlap:  f.EntityOverlap,
		}
	}

	agreement := -1.0
	if req.RewriteAgreement != nil {
		agreement = *req.RewriteAgreement
	}

	result := s.pipeline.Run(r.Context(), pipeline.Request{
		Query:            req.Query,
		Facets:           facets,
		RewriteAgreement: agreement,
		Sentences:        req.Sentences,
		TopK:             req.TopK,
	})

	resp := runResponse{Result: result, Health: s.healthSnapshot()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthSnapshot() healthSnapshot {
	state, last := s.gate.Snapshot()
	snap := healthSnapshot{State: state}
	if last != nil {
		snap.Status = last.Status
	}
	return snap
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.gate.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == domain.ProbeUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// promotionRequest is the POST /v1/promotion/evaluate body. The current
// configuration is the server's active one; only the candidate is supplied.
type promotionRequest struct {
	NewConfig domain.PipelineConfig `json:"new_config"`
	HeldOut   []heldOutInput        `json:"held_out"`
}

type heldOutInput struct {
	Query       string            `json:"query"`
	Lists       []sourceListInput `json:"lists"`
	RelevantIDs []string          `json:"relevant_ids"`
}

type sourceListInput struct {
	Source     domain.Source      `json:"source"`
	FacetID    string             `json:"facet_id,omitempty"`
	Weight     float64            `json:"weight"`
	Kept       *bool              `json:"kept,omitempty"`
	Candidates []domain.Candidate `json:"candidates"`
}

func (s *Server) handleEvaluatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.HeldOut) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "held_out set is required")
		return
	}

	heldOut := make([]gate.HeldOutQuery, len(req.HeldOut))
	for i, q := range req.HeldOut {
		lists := make([]fusion.SourceList, len(q.Lists))
		for j, l := range q.Lists {
			kept := true
			if l.Kept != nil {
				kept = *l.Kept
			}
			lists[j] = fusion.SourceList{
				Source:     l.Source,
				FacetID:    l.FacetID,
				Weight:     l.Weight,
				Kept:       kept,
				Candidates: l.Candidates,
			}
		}
		heldOut[i] = gate.HeldOutQuery{Query: q.Query, Lists: lists, RelevantIDs: q.RelevantIDs}
	}

	decision, err := gate.EvaluatePromotion(
		s.pipeline.Config(), req.NewConfig, heldOut, gate.DefaultPromotionFloors())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// requestLogger injects a per-request logger and emits one wide-event line
// per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.logger.With(
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ctx := logger.ContextWithLogger(r.Context(), reqLog)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLog.Info("http_request",
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// recoverer converts handler panics into JSON 500s instead of the default
// plain-text response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidConfig,
		domain.ErrRateLimited,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamUnavailable,
		domain.ErrModelProviderError,
		domain.ErrInsufficientEvidence,
		domain.ErrNotFound,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler matching a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
