package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklight-systems/tracklight/internal/batcher"
	"github.com/tracklight-systems/tracklight/internal/models"
	"github.com/tracklight-systems/tracklight/internal/tenant"
)

// captureGate records every envelope delivered to it.
type captureGate struct {
	mu   sync.Mutex
	sent []*models.BatchEnvelope
}

func (g *captureGate) Send(ctx context.Context, envelope *models.BatchEnvelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, envelope)
	return nil
}

func newTestHandler(t *testing.T) (*CollectHandler, *batcher.Manager, *captureGate) {
	t.Helper()

	gate := &captureGate{}
	resolver := tenant.NewResolver(tenant.StaticSource("fallback-tenant"))
	manager := batcher.NewManager(resolver, gate, batcher.DefaultConfig(), nil)
	t.Cleanup(manager.Close)

	return NewCollectHandler(manager, nil), manager, gate
}

func postCollect(h *CollectHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/collect", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.HandleCollect(rec, req)
	return rec
}

func TestHandleCollect_SingleSubmission(t *testing.T) {
	h, manager, _ := newTestHandler(t)

	rec := postCollect(h, `{"event":"click","category":"interaction","action":"click","tenantId":"t1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["accepted"])
	assert.Equal(t, 1, manager.QueueLen("t1"))
}

func TestHandleCollect_SubmissionArray(t *testing.T) {
	h, manager, _ := newTestHandler(t)

	rec := postCollect(h, `[
		{"event":"page_view","category":"navigation","action":"view","tenantId":"t1"},
		{"event":"click","category":"interaction","action":"click","tenantId":"t1"},
		{"event":"scroll","category":"interaction","action":"scroll","tenantId":"t2"}
	]`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(3), resp["accepted"])
	assert.Equal(t, 2, manager.QueueLen("t1"))
	assert.Equal(t, 1, manager.QueueLen("t2"))
}

func TestHandleCollect_FillsUserAgentFromHeader(t *testing.T) {
	h, _, gate := newTestHandler(t)

	// purchase is critical, so it flushes synchronously and the envelope is
	// observable immediately.
	rec := postCollect(h,
		`{"event":"purchase","category":"ecommerce","action":"purchase","tenantId":"t1"}`,
		map[string]string{"User-Agent": "Mozilla/5.0 Chrome/120.0 Safari/537.36"},
	)

	require.Equal(t, http.StatusOK, rec.Code)
	gate.mu.Lock()
	defer gate.mu.Unlock()
	require.Len(t, gate.sent, 1)
	require.Len(t, gate.sent[0].Events, 1)
	assert.Equal(t, "chrome", gate.sent[0].Events[0].UserAgent)
}

func TestHandleCollect_MethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/collect", nil)
	rec := httptest.NewRecorder()
	h.HandleCollect(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCollect_BadBody(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := postCollect(h, `{"event":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
}

func TestHandleCollect_EmptyBody(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := postCollect(h, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}
