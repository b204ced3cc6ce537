package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"policyscope/internal/config"
	"policyscope/internal/domain"
	"policyscope/internal/engine"
	"policyscope/internal/storage"
	"policyscope/internal/vector"
)

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AuthToken = authToken
	cfg.Telemetry.PrometheusEnabled = false

	store := storage.NewMemoryStore()
	eng, err := engine.New(store, vector.NewMemoryIndex(), engine.Options{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewServer(cfg, eng, store)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func ingestTestPolicy(t *testing.T, handler http.Handler, id, app, subject string, embedding []float32) {
	t.Helper()
	rec := postJSON(t, handler, "/v1/policies", map[string]any{
		"id":             id,
		"tenant_id":      "t1",
		"application_id": app,
		"subject":        subject,
		"resource":       "orders",
		"resource_type":  "orders",
		"action":         "read",
		"effect":         "allow",
		"embedding":      embedding,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest %s: status %d: %s", id, rec.Code, rec.Body.String())
	}
}

func TestIngestAndFindSimilar(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	ingestTestPolicy(t, h, "p1", "app-1", "role:admin", []float32{1, 0})
	ingestTestPolicy(t, h, "p2", "app-2", "role:admin", []float32{1, 0.05})

	req := httptest.NewRequest(http.MethodGet, "/v1/policies/p1/similar?tenant_id=t1&limit=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SimilarPolicies []domain.SimilarPolicy `json:"similar_policies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.SimilarPolicies) != 1 || resp.SimilarPolicies[0].Policy.ID != "p2" {
		t.Errorf("similar = %+v, want [p2]", resp.SimilarPolicies)
	}
}

func TestIngestValidationError(t *testing.T) {
	srv := newTestServer(t, "")
	rec := postJSON(t, srv.Handler(), "/v1/policies", map[string]any{
		"tenant_id": "t1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	srv := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/policies/nope?tenant_id=t1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestResolveConflictStatusMapping(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	// Unknown conflict id maps not-found to 404.
	rec := postJSON(t, h, "/v1/conflicts/nope/resolve", map[string]any{"strategy": "keep_a"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	// Custom without notes maps invalid-argument to 400.
	rec = postJSON(t, h, "/v1/conflicts/nope/resolve", map[string]any{"strategy": "custom"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestConflictWorkflowOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")
	h := srv.Handler()

	ingestTestPolicy(t, h, "pa", "app-1", "role:editor", []float32{1, 0})
	rec := postJSON(t, h, "/v1/policies", map[string]any{
		"id":             "pb",
		"tenant_id":      "t1",
		"application_id": "app-2",
		"subject":        "role:editor",
		"resource":       "orders",
		"resource_type":  "orders",
		"action":         "read",
		"effect":         "deny",
		"embedding":      []float32{0, 1},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest pb: %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h, "/v1/conflicts/detect", map[string]any{"tenant_id": "t1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("detect: %d: %s", rec.Code, rec.Body.String())
	}
	var detectResp struct {
		Conflicts []domain.Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detectResp); err != nil {
		t.Fatal(err)
	}
	if len(detectResp.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(detectResp.Conflicts))
	}

	path := fmt.Sprintf("/v1/conflicts/%s/resolve", detectResp.Conflicts[0].ID)
	rec = postJSON(t, h, path, map[string]any{"strategy": "keep_b", "resolution_notes": "deny wins"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: %d: %s", rec.Code, rec.Body.String())
	}

	// Second resolution maps precondition-failed to 409.
	rec = postJSON(t, h, path, map[string]any{"strategy": "keep_a"})
	if rec.Code != http.StatusConflict {
		t.Errorf("double resolve: status = %d, want 409", rec.Code)
	}
}

func TestAuthToken(t *testing.T) {
	srv := newTestServer(t, "sekrit")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/role-mappings?tenant_id=t1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/role-mappings?tenant_id=t1", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rec.Code)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	srv := newTestServer(t, "")
	rec := postJSONMethod(t, srv.Handler(), http.MethodPut, "/v1/auto-approval/settings", map[string]any{
		"tenant_id":                "t1",
		"enabled":                  true,
		"risk_threshold":           150,
		"min_historical_approvals": 3,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func postJSONMethod(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
