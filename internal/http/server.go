// Package http provides the JSON API over the policy intelligence engine.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"policyscope/internal/config"
	"policyscope/internal/domain"
	"policyscope/internal/engine"
	"policyscope/internal/telemetry"
)

// Server is the HTTP API server.
type Server struct {
	config *config.Config
	engine *engine.Engine
	store  domain.Store
	mux    *http.ServeMux
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, eng *engine.Engine, store domain.Store) *Server {
	s := &Server{
		config: cfg,
		engine: eng,
		store:  store,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Policies and similarity
	s.mux.HandleFunc("POST /v1/policies", s.withAuth(s.handleIngestPolicy))
	s.mux.HandleFunc("GET /v1/policies/{id}", s.withAuth(s.handleGetPolicy))
	s.mux.HandleFunc("GET /v1/policies/{id}/similar", s.withAuth(s.handleFindSimilar))

	// Auto-approval
	s.mux.HandleFunc("POST /v1/policies/{id}/evaluate", s.withAuth(s.handleEvaluate))
	s.mux.HandleFunc("GET /v1/auto-approval/metrics", s.withAuth(s.handleApprovalMetrics))
	s.mux.HandleFunc("PUT /v1/auto-approval/settings", s.withAuth(s.handleUpdateSettings))
	s.mux.HandleFunc("GET /v1/auto-approval/decisions", s.withAuth(s.handleListDecisions))

	// Conflicts
	s.mux.HandleFunc("POST /v1/conflicts/detect", s.withAuth(s.handleDetectConflicts))
	s.mux.HandleFunc("GET /v1/conflicts", s.withAuth(s.handleListConflicts))
	s.mux.HandleFunc("POST /v1/conflicts/{id}/resolve", s.withAuth(s.handleResolveConflict))

	// Duplicates and consolidation
	s.mux.HandleFunc("POST /v1/duplicates/detect", s.withAuth(s.handleDetectDuplicates))
	s.mux.HandleFunc("POST /v1/duplicates/consolidate", s.withAuth(s.handleConsolidate))

	// Inconsistent enforcement
	s.mux.HandleFunc("POST /v1/enforcement/detect", s.withAuth(s.handleDetectInconsistencies))
	s.mux.HandleFunc("GET /v1/enforcement/findings", s.withAuth(s.handleListFindings))
	s.mux.HandleFunc("PATCH /v1/enforcement/findings/{id}", s.withAuth(s.handleUpdateFinding))

	// Role mappings
	s.mux.HandleFunc("POST /v1/role-mappings/discover", s.withAuth(s.handleDiscoverRoleMappings))
	s.mux.HandleFunc("GET /v1/role-mappings", s.withAuth(s.handleListRoleMappings))
	s.mux.HandleFunc("POST /v1/role-mappings/{id}/approve", s.withAuth(s.handleApproveRoleMapping))
	s.mux.HandleFunc("POST /v1/role-mappings/{id}/apply", s.withAuth(s.handleApplyRoleMapping))

	// Infrastructure
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.config.Telemetry.PrometheusEnabled {
		s.mux.Handle("GET /metrics", telemetry.Handler())
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return http.MaxBytesHandler(s.mux, s.config.Server.MaxRequestSize)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// withAuth enforces the static bearer token when one is configured.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	if s.config.Server.AuthToken == "" {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.config.Server.AuthToken {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing bearer token")
			return
		}
		handler(w, r)
	}
}

// =============================================================================
// Policies and similarity
// =============================================================================

// ingestRequest carries the policy plus its embedding; the embedding is
// excluded from domain.Policy's JSON shape everywhere else.
type ingestRequest struct {
	domain.Policy
	Embedding []float32 `json:"embedding"`
}

func (s *Server) handleIngestPolicy(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	p := req.Policy
	p.Embedding = req.Embedding
	if err := s.engine.IngestPolicy(r.Context(), &p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	p, err := s.store.GetPolicy(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), 10)
	minSimilarity := floatParam(q.Get("min_similarity"), 0)

	results, err := s.engine.SimilarPolicies(r.Context(), q.Get("tenant_id"), r.PathValue("id"), limit, minSimilarity)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"similar_policies": results})
}

// =============================================================================
// Auto-approval
// =============================================================================

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	decision, err := s.engine.EvaluateAutoApproval(r.Context(), req.TenantID, r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleApprovalMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.AutoApprovalMetrics(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.AutoApprovalSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := s.engine.UpdateAutoApprovalSettings(r.Context(), &settings); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &settings)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	decisions, err := s.store.ListDecisions(r.Context(), q.Get("tenant_id"), intParam(q.Get("limit"), 100))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

// =============================================================================
// Conflicts
// =============================================================================

type detectRequest struct {
	TenantID string `json:"tenant_id"`
}

func (s *Server) decodeDetectRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return "", false
	}
	if req.TenantID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return "", false
	}
	return req.TenantID, true
}

func (s *Server) handleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.decodeDetectRequest(w, r)
	if !ok {
		return
	}
	conflicts, err := s.engine.DetectConflicts(r.Context(), tenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conflicts, err := s.store.ListConflicts(r.Context(), q.Get("tenant_id"), domain.FindingStatus(q.Get("status")))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
		Notes    string `json:"resolution_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	c, err := s.engine.ResolveConflict(r.Context(), r.PathValue("id"), domain.ResolutionStrategy(req.Strategy), req.Notes)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// =============================================================================
// Duplicates and consolidation
// =============================================================================

func (s *Server) handleDetectDuplicates(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.decodeDetectRequest(w, r)
	if !ok {
		return
	}
	groups, err := s.engine.DetectDuplicates(r.Context(), tenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"duplicate_groups": groups})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID     string   `json:"tenant_id"`
		PolicyIDs    []string `json:"policy_ids"`
		KeepPolicyID string   `json:"keep_policy_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	removed, err := s.engine.Consolidate(r.Context(), req.TenantID, req.PolicyIDs, req.KeepPolicyID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"kept_policy_id": req.KeepPolicyID,
		"removed_ids":    removed,
	})
}

// =============================================================================
// Inconsistent enforcement
// =============================================================================

func (s *Server) handleDetectInconsistencies(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.decodeDetectRequest(w, r)
	if !ok {
		return
	}
	findings, err := s.engine.DetectInconsistencies(r.Context(), tenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	findings, err := s.store.ListFindings(r.Context(), q.Get("tenant_id"), domain.FindingStatus(q.Get("status")))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

func (s *Server) handleUpdateFinding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	f, err := s.engine.UpdateFindingStatus(r.Context(), r.PathValue("id"), domain.FindingStatus(req.Status))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

// =============================================================================
// Role mappings
// =============================================================================

func (s *Server) handleDiscoverRoleMappings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID        string `json:"tenant_id"`
		MinApplications int    `json:"min_applications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.MinApplications == 0 {
		req.MinApplications = 2
	}
	mappings, err := s.engine.DiscoverRoleMappings(r.Context(), req.TenantID, req.MinApplications)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"role_mappings": mappings})
}

func (s *Server) handleListRoleMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.ListRoleMappings(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"role_mappings": mappings})
}

func (s *Server) handleApproveRoleMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	m, err := s.engine.ApproveRoleMapping(r.Context(), r.PathValue("id"), req.ApprovedBy)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleApplyRoleMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.MarkRoleMappingApplied(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// =============================================================================
// Infrastructure
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper methods

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable error type and message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Type:    errType,
			Message: message,
		},
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.KindInvalidArgument:
		s.writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case domain.KindPreconditionFailed:
		s.writeError(w, http.StatusConflict, "precondition_failed", err.Error())
	case domain.KindDependencyUnavailable:
		s.writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error())
	default:
		slog.Error("internal error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func floatParam(v string, def float64) float64 {
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
